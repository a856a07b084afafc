package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/victornm/tquiz/internal/quiz"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type streamMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Stream pushes a snapshot over a websocket after every session change,
// countdown ticks included. Messages from the client are ignored; the stream
// ends when either side closes or the session is deleted.
func (a *API) Stream(c *gin.Context) {
	a.withSession(c, func(ss *quiz.Session) {
		conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.WarnContext(c.Request.Context(), "api: websocket upgrade failed", "session", ss.ID(), "error", err)
			return
		}
		defer conn.Close()

		updates, cancel := ss.Watch()
		defer cancel()

		readerDone := make(chan struct{})
		go func() {
			defer close(readerDone)

			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(pongWait))
			})

			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()

		for {
			select {
			case snap, ok := <-updates:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
					return
				}

				if err := conn.WriteJSON(streamMessage{Type: "snapshot", Payload: snap.Redacted()}); err != nil {
					slog.InfoContext(c.Request.Context(), "api: websocket write failed", "session", ss.ID(), "error", err)
					return
				}

			case <-ping.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}

			case <-readerDone:
				return
			}
		}
	})
}
