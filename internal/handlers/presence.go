package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"hilom-backend/internal/middleware"
	"hilom-backend/internal/presence"
	"hilom-backend/internal/websocket"
	"hilom-backend/pkg/utils"
)

type PresenceRequest struct {
	Online    bool     `json:"online"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// UpdatePresence toggles the calling therapist online or offline. Going
// online requires a position so clients can see who is nearby; going
// offline never touches a booking already in progress.
func UpdatePresence(presenceStore *presence.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req PresenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		ctx, cancel := storeContext(r)
		defer cancel()

		if req.Online {
			if req.Latitude == nil || req.Longitude == nil {
				utils.RespondError(w, http.StatusBadRequest, "latitude and longitude are required to go online")
				return
			}
			if err := presenceStore.SetOnline(ctx, userClaims.UserID, *req.Latitude, *req.Longitude); err != nil {
				log.Printf("❌ Failed to set presence online: %v", err)
				utils.RespondError(w, http.StatusInternalServerError, "Failed to update presence")
				return
			}
			log.Printf("🟢 Therapist %s is now ONLINE", userClaims.UserID)
		} else {
			if err := presenceStore.SetOffline(ctx, userClaims.UserID); err != nil {
				log.Printf("❌ Failed to set presence offline: %v", err)
				utils.RespondError(w, http.StatusInternalServerError, "Failed to update presence")
				return
			}
			log.Printf("⚪ Therapist %s is now OFFLINE", userClaims.UserID)
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"online":  req.Online,
		})
	}
}

type LocationReportRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

// ReportLocation receives a device position report (sent every few seconds
// while the therapist app is foregrounded) and stores it in the presence
// store, where the location reporter samples it on its next tick.
func ReportLocation(presenceStore *presence.Store, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req LocationReportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		if req.Latitude == 0 && req.Longitude == 0 {
			utils.RespondError(w, http.StatusBadRequest, "Invalid coordinates")
			return
		}
		if req.Timestamp == 0 {
			req.Timestamp = time.Now().Unix()
		}

		ctx, cancel := storeContext(r)
		defer cancel()

		if err := presenceStore.UpdatePosition(ctx, userClaims.UserID, req.Latitude, req.Longitude); err != nil {
			log.Printf("❌ Failed to store location report: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to save location")
			return
		}

		// Admins watch the whole fleet live
		hub.BroadcastToRole("admin", map[string]interface{}{
			"type": "therapist_location_update",
			"data": map[string]interface{}{
				"therapist_id": userClaims.UserID,
				"latitude":     req.Latitude,
				"longitude":    req.Longitude,
				"timestamp":    req.Timestamp,
			},
		})

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
		})
	}
}
