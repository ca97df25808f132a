package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API is same-origin behind the front end; cross-origin reads of
	// progress data are harmless.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// clientMessage is what the browser sends: join-scan / leave-scan.
type clientMessage struct {
	Event  string `json:"event"`
	ScanID string `json:"scanId"`
}

// serverMessage frames everything pushed to the browser.
type serverMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// wsClient is one WebSocket connection and its scan subscriptions. send is
// never closed; done signals the writer and the forwarders to stop.
type wsClient struct {
	conn *websocket.Conn
	send chan serverMessage
	done chan struct{}

	mu   sync.Mutex
	subs map[string]func() // scanID -> unsubscribe
}

func (s *Server) serveWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan serverMessage, 32),
		done: make(chan struct{}),
		subs: make(map[string]func()),
	}

	go client.writeLoop()
	s.readLoop(client)
}

// readLoop handles join/leave messages until the connection drops, then
// tears down every subscription.
func (s *Server) readLoop(client *wsClient) {
	defer func() {
		client.mu.Lock()
		for _, cancel := range client.subs {
			cancel()
		}
		client.subs = nil
		client.mu.Unlock()
		close(client.done)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(1024)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.ScanID == "" {
			continue
		}

		switch msg.Event {
		case "join-scan":
			s.joinScan(client, msg.ScanID)
		case "leave-scan":
			client.leave(msg.ScanID)
		}
	}
}

// joinScan subscribes the connection to one scan's progress. The bus
// replays the cached latest event, so late joiners see state immediately.
func (s *Server) joinScan(client *wsClient, scanID string) {
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.subs == nil {
		return
	}
	if _, dup := client.subs[scanID]; dup {
		return
	}

	updates, cancel := s.bus.Subscribe(scanID)
	client.subs[scanID] = cancel

	go func() {
		for u := range updates {
			msg := serverMessage{Event: u.Type}
			if u.Event != nil {
				msg.Data = u.Event
			} else {
				msg.Data = gin.H{"scanId": u.ScanID, "message": u.Message}
			}
			select {
			case client.send <- msg:
			case <-client.done:
				return
			default:
				// Slow consumer: drop rather than stall the bus drain.
			}
		}
	}()
}

func (c *wsClient) leave(scanID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.subs[scanID]; ok {
		cancel()
		delete(c.subs, scanID)
	}
}

// writeLoop is the single writer on the connection, multiplexing progress
// pushes with keepalive pings.
func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
