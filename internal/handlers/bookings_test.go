package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"hilom-backend/internal/dispatch"
)

func TestRespondDispatchError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized", dispatch.ErrUnauthorized, http.StatusUnauthorized},
		{"already claimed", dispatch.ErrAlreadyClaimed, http.StatusConflict},
		{"stale state", dispatch.ErrStaleState, http.StatusConflict},
		{"not found", dispatch.ErrNotFound, http.StatusNotFound},
		{"timeout", dispatch.ErrTimeout, http.StatusGatewayTimeout},
		{
			// Store calls bounded by the request timeout fail with a raw
			// deadline error; that is still a retryable timeout, not a 500.
			"store deadline",
			fmt.Errorf("failed to get booking: %w", context.DeadlineExceeded),
			http.StatusGatewayTimeout,
		},
		{
			"wrapped sentinel",
			fmt.Errorf("%w: booking b1 is not in status pending", dispatch.ErrStaleState),
			http.StatusConflict,
		},
		{"unknown", fmt.Errorf("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondDispatchError(rec, tt.err)
			if rec.Code != tt.want {
				t.Errorf("respondDispatchError(%v) = %d, want %d", tt.err, rec.Code, tt.want)
			}
		})
	}
}
