package handlers

import (
	"net/http"
	"time"

	"stockdesk/src/utils"
	"stockdesk/src/views"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
	wsBuffer     = 8
)

// checkOrigin accepts the configured origins. None configured allows any.
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Watch streams the active page's view after every change. The current view
// is sent first.
func (h *Handler) Watch(w http.ResponseWriter, r *http.Request) {
	log := utils.LoggerFromContext(r.Context(), h.Logger)
	upgrader := websocket.Upgrader{CheckOrigin: h.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates := make(chan views.PageView, wsBuffer)
	push := func(view views.PageView) {
		select {
		case updates <- view:
		default:
			// Slow reader: drop the oldest view, the newest supersedes it.
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- view:
			default:
			}
		}
	}
	stop := h.Navigator.Watch(push)
	defer stop()

	if page := h.Navigator.Active(); page != nil {
		push(h.Navigator.Render(page))
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	log.Debug("websocket client connected")
	for {
		select {
		case <-closed:
			log.Debug("websocket client disconnected")
			return
		case <-r.Context().Done():
			return
		case view := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(view); err != nil {
				log.WithError(err).Debug("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
