package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"peasurvey/internal/conversation"
)

const (
	eventBuffer  = 32
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{CheckOrigin: h.checkOrigin}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}
	for _, o := range h.origins {
		if o == origin || o == "*" {
			return true
		}
	}
	return false
}

// events pushes the session's store changes to the browser. The page reacts to
// "message" events by re-rendering and scrolling to the newest message.
func (h *Handler) events(c *gin.Context) {
	st, ok := h.store(c)
	if !ok {
		return
	}
	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	out := make(chan conversation.Event, eventBuffer)
	cancel := st.Subscribe(func(ev conversation.Event) {
		select {
		case out <- ev:
		default:
			log.Printf("event buffer full for session %s, dropping %s", ev.SessionID, ev.Type)
		}
	})
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket closed unexpectedly: %v", err)
				}
				return
			}
		}
	}()

	initial := conversation.Event{Type: conversation.EventLoadingChanged, SessionID: st.SessionID(), Loading: st.Loading()}
	if err := writeEvent(conn, initial); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case ev := <-out:
			if err := writeEvent(conn, ev); err != nil {
				log.Printf("write websocket event: %v", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev conversation.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(ev)
}
