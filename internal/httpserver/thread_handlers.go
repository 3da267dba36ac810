package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/domain"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/service"
)

type threadCreateRequest struct {
	Name           *string           `json:"name"`
	Type           domain.ThreadType `json:"type"`
	ParticipantIDs []int64           `json:"participant_ids"`
}

func handleCreateThread(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req threadCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		thread, err := d.Threads.EnsureThread(r.Context(), currentUser, service.ThreadCreateInput{
			Name:           req.Name,
			Type:           req.Type,
			ParticipantIDs: req.ParticipantIDs,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		if ids, err := d.Threads.ParticipantIDs(r.Context(), thread.ID); err == nil {
			d.Hub.BroadcastToUsers(ids, map[string]any{
				"type":      "added-to-chat",
				"thread_id": thread.ID,
				"actor_id":  currentUser.ID,
			})
		}
		writeJSON(w, http.StatusCreated, thread)
	}
}

func handleListThreads(threadSvc *service.ThreadService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var typeFilter *domain.ThreadType
		if t := r.URL.Query().Get("type"); t != "" {
			tt := domain.ThreadType(t)
			if !domain.ValidThreadType(tt) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid thread type"})
				return
			}
			typeFilter = &tt
		}
		threads, err := threadSvc.ListForUser(r.Context(), currentUser.ID, typeFilter)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, threads)
	}
}

func handleGetThread(threadSvc *service.ThreadService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		id, err := threadIDParam(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid thread id"})
			return
		}
		thread, err := threadSvc.GetThread(r.Context(), currentUser, id)
		if err != nil {
			writeError(w, err)
			return
		}
		participants, err := threadSvc.ListParticipants(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"thread":       thread,
			"participants": participants,
		})
	}
}

type threadUpdateRequest struct {
	Name *string            `json:"name"`
	Type *domain.ThreadType `json:"type"`
}

func handleUpdateThread(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		id, err := threadIDParam(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid thread id"})
			return
		}
		var req threadUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		thread, err := d.Threads.UpdateThread(r.Context(), currentUser, id, service.ThreadUpdateInput{
			Name: req.Name,
			Type: req.Type,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		d.Hub.BroadcastToThread(id, map[string]any{
			"type":      "thread-updated",
			"thread_id": id,
			"name":      thread.Name,
		})
		writeJSON(w, http.StatusOK, thread)
	}
}

func handleDeleteThread(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		id, err := threadIDParam(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid thread id"})
			return
		}

		participantIDs, _ := d.Threads.ParticipantIDs(r.Context(), id)

		if err := d.Threads.DeleteThread(r.Context(), currentUser, id); err != nil {
			writeError(w, err)
			return
		}
		d.Hub.BroadcastToUsers(participantIDs, map[string]any{
			"type":      "thread-deleted",
			"thread_id": id,
			"actor_id":  currentUser.ID,
		})
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

type participantAddRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

func handleAddParticipants(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		id, err := threadIDParam(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid thread id"})
			return
		}
		var req participantAddRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		added, err := d.Threads.AddParticipants(r.Context(), currentUser, id, req.UserIDs)
		if err != nil {
			writeError(w, err)
			return
		}
		if len(added) > 0 {
			d.Hub.BroadcastToUsers(added, map[string]any{
				"type":      "added-to-chat",
				"thread_id": id,
				"actor_id":  currentUser.ID,
			})
			d.Hub.BroadcastToThread(id, map[string]any{
				"type":      "participants-added",
				"thread_id": id,
				"user_ids":  added,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"added": added})
	}
}

func handleRemoveParticipant(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		id, err := threadIDParam(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid thread id"})
			return
		}
		userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
			return
		}

		if err := d.Threads.RemoveParticipant(r.Context(), currentUser, id, userID); err != nil {
			writeError(w, err)
			return
		}
		d.Hub.BroadcastToUsers([]int64{userID}, map[string]any{
			"type":      "removed-from-chat",
			"thread_id": id,
			"actor_id":  currentUser.ID,
		})
		d.Hub.BroadcastToThread(id, map[string]any{
			"type":      "participant-removed",
			"thread_id": id,
			"user_id":   userID,
			"actor_id":  currentUser.ID,
		})
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
	}
}

func threadIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "threadID"), 10, 64)
}
