package transport

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cuemby/solidb/pkg/changefeed"
	"github.com/cuemby/solidb/pkg/log"
	"github.com/cuemby/solidb/pkg/metrics"
)

const writeWait = 5 * time.Second

// upgrader accepts WebSocket upgrades from any origin. No origin
// allowlist is applied, and the change-feed route performs no
// authentication: neither the router nor this handler checks a bearer
// token.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleChangefeedWS serves GET /_api/ws/changefeed?collection=... (spec
// §6). With no collection query parameter it serves the deduplicated
// global feed instead (spec §4.11 "Global change-feed aggregates... by
// connecting to every shard-owning peer's change-feed").
func (s *Server) handleChangefeedWS(w http.ResponseWriter, r *http.Request) {
	database := r.URL.Query().Get("database")
	collection := r.URL.Query().Get("collection")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var sub *changefeed.Subscription
	if collection != "" {
		sub = s.changefeed.Subscribe(database, collection)
	} else {
		sub = s.changefeed.SubscribeGlobal()
	}
	defer sub.Close()
	metrics.ChangefeedSubscribersTotal.Inc()
	defer metrics.ChangefeedSubscribersTotal.Dec()

	logger := log.WithComponent("changefeed-ws")

	// A reader goroutine is required so gorilla/websocket notices the
	// client closing the connection (control frames are only processed
	// while a read is outstanding); this handler otherwise only writes.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case change, ok := <-sub.C:
			if !ok {
				// Disconnected for falling behind (spec §5 slow-consumer
				// policy): closing the socket tells the client a gap
				// happened instead of leaving it waiting silently.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseMessage, "slow consumer disconnected"),
					time.Now().Add(writeWait))
				return
			}
			if err := conn.WriteJSON(changeEventDTO(change)); err != nil {
				logger.Debug().Err(err).Msg("changefeed write failed")
				return
			}
		case <-closed:
			return
		}
	}
}

func changeEventDTO(c *changefeed.Change) map[string]any {
	out := map[string]any{
		"type": string(c.Type),
		"key":  c.Key,
	}
	if c.Data != nil {
		out["data"] = objectToGo(c.Data)
	}
	if c.OldData != nil {
		out["old_data"] = objectToGo(c.OldData)
	}
	return out
}
