package httpserver

import (
	"encoding/json"
	"net/http"

	"breederhub/internal/service"
)

func handleGetSLAStats(slaSvc *service.SLAService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := CurrentActor(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		stats, err := slaSvc.Stats(r.Context(), actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

type scheduleUpdateRequest struct {
	Schedule *string `json:"schedule"`
	TimeZone string  `json:"time_zone"`
}

func handleUpdateSchedule(slaSvc *service.SLAService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := CurrentActor(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req scheduleUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if err := slaSvc.UpdateSchedule(r.Context(), actor, req.Schedule, req.TimeZone); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}
