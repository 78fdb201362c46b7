package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"breederhub/internal/service"
)

type attachmentRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Key  string `json:"key"`
}

type messageCreateRequest struct {
	Body       string             `json:"body"`
	Attachment *attachmentRequest `json:"attachment,omitempty"`
}

func handleCreateMessage(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := CurrentActor(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		threadID, err := threadIDParam(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid thread id"})
			return
		}

		var req messageCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		in := service.MessageCreateInput{
			ThreadID: threadID,
			Body:     req.Body,
		}
		if req.Attachment != nil {
			in.Attachment = &service.AttachmentInput{
				Name: req.Attachment.Name,
				Type: req.Attachment.Type,
				Size: req.Attachment.Size,
				Key:  req.Attachment.Key,
			}
		}

		msg, err := msgSvc.CreateMessage(r.Context(), in, actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func handleListMessages(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := CurrentActor(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		threadID, err := threadIDParam(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid thread id"})
			return
		}

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		msgs, err := msgSvc.ListMessages(r.Context(), threadID, actor, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}
