package main

import (
	"context"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// notifyUpgrader mirrors the teacher's handshake-timeout-guarded
// upgrader: CheckOrigin defaults to rejecting requests with no Origin
// header, the same "fail closed on missing Origin" rule.
func notifyUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return false
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// NotificationTail serves GET /cal/{key}/notifications: upgrades to a
// WebSocket and relays every keyspace notification published for that
// calendar key (spec §6) until the client disconnects.
type NotificationTail struct {
	subscriber message.Subscriber
	upgrader   websocket.Upgrader
	log        zerolog.Logger
}

// NewNotificationTail wraps a watermill subscriber (the same
// gochannel/GoChannel the Notifier publishes to) for WebSocket fanout.
func NewNotificationTail(sub message.Subscriber, allowedOrigins []string, log zerolog.Logger) *NotificationTail {
	return &NotificationTail{subscriber: sub, upgrader: notifyUpgrader(allowedOrigins), log: log}
}

func (n *NotificationTail) ServeHTTP(w http.ResponseWriter, r *http.Request, calendarKey string) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	messages, err := n.subscriber.Subscribe(ctx, calendarKey)
	if err != nil {
		n.log.Error().Err(err).Str("key", calendarKey).Msg("subscribe failed")
		return
	}

	go n.drainClientReads(conn, cancel)

	for msg := range messages {
		if err := conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
			msg.Ack()
			return
		}
		msg.Ack()
	}
}

// drainClientReads discards inbound frames, watching only for the
// connection close that should unwind the subscription above.
func (n *NotificationTail) drainClientReads(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
