package web

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"navfuse/internal/feed"
	"navfuse/internal/hub"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser-side viewers connect from arbitrary local origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsHandler upgrades the connection and streams hub messages to it as text
// frames. Each connection gets its own subscriber; disconnects tear down
// only that subscriber.
func wsHandler(h *hub.Hub) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("ws upgrade: %v", err)
			return
		}

		sub := h.Subscribe()
		ctx, cancel := context.WithCancel(context.Background())

		// Reader: inbound frames are discarded, but the read loop is what
		// notices a vanished peer.
		go func() {
			defer cancel()
			conn.SetReadLimit(512)
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(pongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		// Pump: pulls from the subscriber queue into a channel the writer
		// can select against.
		msgs := make(chan feed.Message)
		go func() {
			defer close(msgs)
			for {
				m, err := sub.Next(ctx)
				if err != nil {
					if !errors.Is(err, hub.ErrClosed) && !errors.Is(err, context.Canceled) {
						log.Printf("ws next: %v", err)
					}
					return
				}
				select {
				case msgs <- m:
				case <-ctx.Done():
					return
				}
			}
		}()

		// Writer.
		go func() {
			defer cancel()
			defer h.Unsubscribe(sub)
			defer conn.Close()

			ping := time.NewTicker(pingPeriod)
			defer ping.Stop()

			for {
				select {
				case m, ok := <-msgs:
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if !ok {
						_ = conn.WriteMessage(websocket.CloseMessage,
							websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
						return
					}
					if err := conn.WriteMessage(websocket.TextMessage, m.Payload); err != nil {
						return
					}
				case <-ping.C:
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						return
					}
				}
			}
		}()
	})
}
