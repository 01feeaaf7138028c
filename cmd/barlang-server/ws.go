package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"barlang/internal/eventbus"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// relayScriptEvents subscribes to a script's bar/trade channels and forwards
// every published message to conn until the connection or subscription
// closes. One goroutine per connection, the same shape as the teacher's
// per-client write pump.
func relayScriptEvents(ctx context.Context, log *slog.Logger, bus *eventbus.Bus, conn *websocket.Conn, scriptID string) {
	sub := bus.Subscribe(ctx, scriptID)
	defer sub.Close()
	msgCh := sub.Channel()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				log.Warn("ws write failed", "script_id", scriptID, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
