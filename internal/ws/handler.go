package ws

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/domain"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/security"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/service"
)

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	if c, err := r.Cookie(security.SessionCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing session token"}
}

// MakeHandler returns the HTTP handler for the /ws endpoint.
// Authenticates via bearer token or session cookie, then dispatches events:
//   - join-chat / leave-chat  -> thread channel subscription
//   - send-message            -> persist & broadcast new-message
//   - mark-read               -> record receipts + broadcast messages-read
//   - typing / stop-typing    -> ephemeral typing fan-out
//   - ping                    -> presence heartbeat
func MakeHandler(
	hub *Hub,
	typing *TypingBroker,
	tokens *security.TokenService,
	users domain.UserRepository,
	threadSvc *service.ThreadService,
	msgSvc *service.MessageService,
	presence *service.PresenceService,
	log *zap.SugaredLogger,
	allowedOrigins []string,
) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			if authErr, ok := err.(wsAuthError); ok {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		userID, err := tokens.Parse(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := r.Context()
		user, err := users.GetByID(ctx, userID)
		if err != nil || user == nil || !user.IsActive {
			http.Error(w, "user not found or inactive", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if err := presence.Ping(ctx, user.ID); err != nil {
			log.Warnw("presence ping on connect", "user_id", user.ID, "error", err)
		}

		cl := hub.Register(user.ID, conn)
		typingCancels := make(map[int64]func())
		defer func() {
			for _, cancel := range typingCancels {
				cancel()
			}
			// other tabs may still be open; only announce offline when
			// the last connection for this user is gone
			if hub.Unregister(cl) {
				hub.BroadcastAll(map[string]any{
					"type":    "user-offline",
					"user_id": user.ID,
					"name":    user.Name,
				})
			}
		}()
		hub.BroadcastAll(map[string]any{
			"type":    "user-online",
			"user_id": user.ID,
			"name":    user.Name,
		})

		for {
			var payload map[string]any
			if err := conn.ReadJSON(&payload); err != nil {
				break
			}
			// any inbound frame counts as user activity; the service
			// throttles the actual writes
			if err := presence.Ping(ctx, user.ID); err != nil {
				log.Debugw("presence ping", "user_id", user.ID, "error", err)
			}

			msgType, _ := payload["type"].(string)
			switch msgType {

			case "join-chat":
				threadID := int64Field(payload, "thread_id")
				if threadID == 0 {
					sendError(cl, "join-chat requires thread_id")
					continue
				}
				if !isParticipant(ctx, threadSvc, threadID, user.ID) {
					sendError(cl, "not allowed for this chat")
					continue
				}
				hub.JoinThread(cl, threadID)
				if _, ok := typingCancels[threadID]; !ok {
					typingCancels[threadID] = typing.Subscribe(threadID, func(sig Signal) {
						if sig.UserID == user.ID {
							return
						}
						evt := "user-typing"
						if sig.Stop {
							evt = "user-stop-typing"
						}
						_ = cl.send(map[string]any{
							"type":      evt,
							"thread_id": sig.ThreadID,
							"user_id":   sig.UserID,
						})
					})
				}
				_ = cl.send(map[string]any{"type": "joined", "thread_id": threadID})

			case "leave-chat":
				threadID := int64Field(payload, "thread_id")
				if threadID == 0 {
					continue
				}
				hub.LeaveThread(cl, threadID)
				if cancel, ok := typingCancels[threadID]; ok {
					cancel()
					delete(typingCancels, threadID)
				}

			case "send-message":
				threadID := int64Field(payload, "thread_id")
				content, _ := payload["content"].(string)
				if threadID == 0 {
					sendError(cl, "send-message requires thread_id")
					continue
				}
				msg, err := msgSvc.Send(ctx, user, threadID, content)
				if err != nil {
					log.Warnw("ws send-message", "user_id", user.ID, "thread_id", threadID, "error", err)
					sendError(cl, "failed to send message")
					continue
				}
				ids, err := threadSvc.ParticipantIDs(ctx, threadID)
				if err != nil {
					log.Warnw("list participants for broadcast", "thread_id", threadID, "error", err)
					continue
				}
				BroadcastNewMessage(hub, ids, user, msg)

			case "mark-read":
				threadID := int64Field(payload, "thread_id")
				if threadID == 0 {
					continue
				}
				if err := msgSvc.MarkRead(ctx, user, threadID); err != nil {
					log.Warnw("ws mark-read", "user_id", user.ID, "thread_id", threadID, "error", err)
					sendError(cl, "failed to mark messages as read")
					continue
				}
				hub.BroadcastToThread(threadID, map[string]any{
					"type":      "messages-read",
					"thread_id": threadID,
					"user_id":   user.ID,
				})

			case "typing", "stop-typing":
				threadID := int64Field(payload, "thread_id")
				if threadID == 0 {
					continue
				}
				if !isParticipant(ctx, threadSvc, threadID, user.ID) {
					sendError(cl, "not allowed for this chat")
					continue
				}
				typing.Publish(threadID, user.ID, msgType == "stop-typing")

			case "ping":
				// presence already recorded above

			default:
				log.Debugw("unknown ws event", "event", msgType, "user_id", user.ID)
			}
		}
	}
}

// BroadcastNewMessage pushes the message to the thread channel and, for
// participants without a client on that channel, to their personal channel
// so they get a notification while viewing something else. Both the WS and
// REST send paths fan out through here.
func BroadcastNewMessage(hub *Hub, participantIDs []int64, sender *domain.User, msg *domain.Message) {
	payload := map[string]any{
		"type":        "new-message",
		"message_id":  msg.ID,
		"thread_id":   msg.ThreadID,
		"sender_id":   msg.SenderID,
		"sender_name": sender.Name,
		"content":     msg.Content,
		"created_at":  msg.CreatedAt,
		"read_by":     msg.ReadBy,
	}
	hub.BroadcastToThread(msg.ThreadID, payload)

	viewing := hub.ThreadSubscriberIDs(msg.ThreadID)
	var away []int64
	for _, pid := range participantIDs {
		if _, ok := viewing[pid]; !ok {
			away = append(away, pid)
		}
	}
	if len(away) > 0 {
		hub.BroadcastToUsers(away, payload)
	}
}

func isParticipant(ctx context.Context, threadSvc *service.ThreadService, threadID, userID int64) bool {
	ok, err := threadSvc.IsParticipant(ctx, threadID, userID)
	return err == nil && ok
}

func int64Field(payload map[string]any, key string) int64 {
	f, _ := payload[key].(float64)
	return int64(f)
}

func sendError(cl *Client, msg string) {
	_ = cl.send(map[string]any{
		"type":    "error",
		"message": msg,
	})
}
