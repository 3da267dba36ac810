package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/domain"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/service"
)

// userView decorates a directory user with its derived online state.
type userView struct {
	*domain.User
	IsOnline bool `json:"is_online"`
}

func toUserView(u *domain.User, presence *service.PresenceService) userView {
	return userView{User: u, IsOnline: presence.IsOnline(u)}
}

func handleListUsers(userSvc *service.UserService, presence *service.PresenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := userSvc.ListActive(r.Context(), 0, 100)
		if err != nil {
			writeError(w, err)
			return
		}
		views := make([]userView, 0, len(users))
		for _, u := range users {
			views = append(views, toUserView(u, presence))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleListOnlineUsers(presence *service.PresenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := presence.ListOnline(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		views := make([]userView, 0, len(users))
		for _, u := range users {
			views = append(views, userView{User: u, IsOnline: true})
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGetUser(userSvc *service.UserService, presence *service.PresenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
			return
		}
		user, err := userSvc.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserView(user, presence))
	}
}

func handlePresencePing(presence *service.PresenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		if err := presence.Ping(r.Context(), currentUser.ID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
