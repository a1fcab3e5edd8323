package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Action is a client request sent as a text message.
type Action struct {
	Action     string  `json:"action"`
	Multiplier float64 `json:"multiplier,omitempty"`
	Seed       *int64  `json:"seed,omitempty"`
}

func HandleWebsocket(b *Broadcaster) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Println("ws upgrade error:", err)
			return
		}

		b.Register(conn)
		defer b.Unregister(conn)

		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}

			var action Action
			if err := json.Unmarshal(msg, &action); err != nil {
				b.sendError(conn, fmt.Errorf("malformed action: %w", err))
				continue
			}
			if err := b.apply(action); err != nil {
				b.sendError(conn, err)
			}
		}
	}
}

// apply runs one client action. Every successful action ends with a frame
// broadcast to all clients.
func (b *Broadcaster) apply(action Action) error {
	switch action.Action {
	case "pause":
		b.Pause()
	case "resume":
		b.Resume()
	case "step":
		b.Step()
	case "reset":
		return b.Reset(action.Seed)
	case "set_speed":
		return b.SetSpeed(action.Multiplier)
	default:
		return fmt.Errorf("unknown action %q", action.Action)
	}
	return nil
}
