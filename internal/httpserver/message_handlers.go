package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/domain"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/service"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/ws"
)

type messageCreateRequest struct {
	Content string `json:"content"`
}

func handleSendMessage(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
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

		msg, err := d.Messages.Send(r.Context(), currentUser, threadID, req.Content)
		if err != nil {
			writeError(w, err)
			return
		}

		if ids, err := d.Threads.ParticipantIDs(r.Context(), threadID); err == nil {
			ws.BroadcastNewMessage(d.Hub, ids, currentUser, msg)
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func handleListMessages(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		threadID, err := threadIDParam(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid thread id"})
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		msgs, err := msgSvc.List(r.Context(), currentUser, threadID, limit, offset)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

type messageDeleteRequest struct {
	Reason *domain.DeleteReason `json:"reason"`
}

func handleDeleteMessage(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		messageID, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid message id"})
			return
		}
		// body is optional; senders need no reason
		var req messageDeleteRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		msg, err := d.Messages.Delete(r.Context(), currentUser, messageID, req.Reason)
		if err != nil {
			writeError(w, err)
			return
		}
		d.Hub.BroadcastToThread(msg.ThreadID, map[string]any{
			"type":       "message-deleted",
			"message_id": msg.ID,
			"thread_id":  msg.ThreadID,
			"actor_id":   currentUser.ID,
		})
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleAuditMessage(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		messageID, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid message id"})
			return
		}
		msg, err := msgSvc.Audit(r.Context(), currentUser, messageID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}
