package models

import (
	"testing"
	"time"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		name   string
		from   BookingStatus
		want   BookingStatus
		wantOK bool
	}{
		{"claimed advances to arrived", BookingStatusClaimed, BookingStatusArrived, true},
		{"arrived advances to in_progress", BookingStatusArrived, BookingStatusInProgress, true},
		{"in_progress advances to completed", BookingStatusInProgress, BookingStatusCompleted, true},
		{"pending cannot advance", BookingStatusPending, "", false},
		{"completed is terminal", BookingStatusCompleted, "", false},
		{"cancelled is terminal", BookingStatusCancelled, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextStatus(tt.from)
			if ok != tt.wantOK {
				t.Fatalf("NextStatus(%s) ok = %v, want %v", tt.from, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("NextStatus(%s) = %s, want %s", tt.from, got, tt.want)
			}
		})
	}
}

func TestNextStatusNeverSkips(t *testing.T) {
	// Following NextStatus from claimed must visit every intermediate
	// status exactly once, in order.
	want := []BookingStatus{BookingStatusArrived, BookingStatusInProgress, BookingStatusCompleted}

	status := BookingStatusClaimed
	var visited []BookingStatus
	for {
		next, ok := NextStatus(status)
		if !ok {
			break
		}
		visited = append(visited, next)
		status = next
	}

	if len(visited) != len(want) {
		t.Fatalf("walked %d statuses, want %d: %v", len(visited), len(want), visited)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Errorf("step %d: got %s, want %s", i, visited[i], want[i])
		}
	}
}

func TestCanCancel(t *testing.T) {
	tests := []struct {
		status BookingStatus
		want   bool
	}{
		{BookingStatusPending, false},
		{BookingStatusClaimed, true},
		{BookingStatusArrived, true},
		{BookingStatusInProgress, false},
		{BookingStatusCompleted, false},
		{BookingStatusCancelled, false},
	}

	for _, tt := range tests {
		if got := CanCancel(tt.status); got != tt.want {
			t.Errorf("CanCancel(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := map[BookingStatus]bool{
		BookingStatusCompleted: true,
		BookingStatusCancelled: true,
	}
	all := []BookingStatus{
		BookingStatusPending, BookingStatusClaimed, BookingStatusArrived,
		BookingStatusInProgress, BookingStatusCompleted, BookingStatusCancelled,
	}
	for _, s := range all {
		if got := IsTerminal(s); got != terminal[s] {
			t.Errorf("IsTerminal(%s) = %v, want %v", s, got, terminal[s])
		}
	}
}

func TestElapsedSession(t *testing.T) {
	started := int64(1_700_000_000)
	ended := started + 3600

	tests := []struct {
		name    string
		booking Booking
		now     time.Time
		want    time.Duration
	}{
		{
			name:    "not started yet",
			booking: Booking{Status: BookingStatusClaimed},
			now:     time.Unix(started, 0),
			want:    0,
		},
		{
			name:    "running session derives from started_at",
			booking: Booking{Status: BookingStatusInProgress, StartedAt: &started},
			now:     time.Unix(started+90, 0),
			want:    90 * time.Second,
		},
		{
			name:    "completed session is frozen at ended_at",
			booking: Booking{Status: BookingStatusCompleted, StartedAt: &started, EndedAt: &ended},
			now:     time.Unix(ended+9999, 0),
			want:    time.Hour,
		},
		{
			name:    "clock skew never yields negative elapsed",
			booking: Booking{Status: BookingStatusInProgress, StartedAt: &started},
			now:     time.Unix(started-30, 0),
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.booking.ElapsedSession(tt.now); got != tt.want {
				t.Errorf("ElapsedSession() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestElapsedSessionSurvivesSuspend(t *testing.T) {
	// A caller that stops reading for a while must re-derive the true
	// elapsed time on resume, not continue from where it left off.
	started := int64(1_700_000_000)
	b := Booking{Status: BookingStatusInProgress, StartedAt: &started}

	atOneMinute := b.ElapsedSession(time.Unix(started+60, 0))
	atTenMinutes := b.ElapsedSession(time.Unix(started+600, 0))

	if atOneMinute != time.Minute {
		t.Errorf("at one minute: got %v", atOneMinute)
	}
	if atTenMinutes != 10*time.Minute {
		t.Errorf("after gap: got %v, want 10m", atTenMinutes)
	}
}

func TestOwnedBy(t *testing.T) {
	alice := "therapist-alice"

	b := Booking{Status: BookingStatusClaimed, TherapistID: &alice}
	if !b.OwnedBy(alice) {
		t.Error("owner should be recognized")
	}
	if b.OwnedBy("therapist-bob") {
		t.Error("non-owner should be rejected")
	}

	unclaimed := Booking{Status: BookingStatusPending}
	if unclaimed.OwnedBy(alice) {
		t.Error("unclaimed booking has no owner")
	}
}
