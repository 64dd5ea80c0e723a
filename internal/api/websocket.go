package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"band-trader/internal/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage is one frame pushed to UI clients.
type wsMessage struct {
	Type events.Event `json:"type"`
	Data any          `json:"data"`
}

// wsTopics are the bus events forwarded to UI clients.
var wsTopics = []events.Event{
	events.EventCycle,
	events.EventRunState,
	events.EventOrderSubmitted,
	events.EventOrderAccepted,
	events.EventOrderRejected,
}

// websocket streams cycle outcomes, run-state changes and order lifecycle
// events. The current snapshot is sent first so a client does not wait a
// full poll interval.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Log.WithError(err).Warn("ws upgrade error")
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	done := make(chan struct{})
	defer close(done)
	merged := make(chan wsMessage, 100)
	for _, topic := range wsTopics {
		ch, unsub := s.Bus.Subscribe(topic, 32)
		defer unsub()
		go forwardTopic(topic, ch, merged, done)
	}

	// Reader goroutine only exists to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(m wsMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(m); err != nil {
			s.Log.WithError(err).Debug("ws write error")
			return false
		}
		return true
	}

	if !write(wsMessage{Type: "snapshot", Data: s.Engine.Snapshot()}) {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case msg := <-merged:
			if !write(msg) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// forwardTopic tags payloads from one subscription and feeds them into out
// until the subscription closes or done is closed.
func forwardTopic(topic events.Event, in <-chan any, out chan<- wsMessage, done <-chan struct{}) {
	for {
		select {
		case payload, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- wsMessage{Type: topic, Data: payload}:
			case <-done:
				return
			}
		case <-done:
			return
		}
	}
}
