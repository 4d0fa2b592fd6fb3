package broadcast

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// subscribeRequest is the single client->hub control message a peer can
// send: {"action":"subscribe","topic":"tx"}.
type subscribeRequest struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// Peer is one WebSocket-connected subscriber.
type Peer struct {
	id     uint64
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]struct{}
}

// ID returns the peer's hub-assigned connection id.
func (p *Peer) ID() uint64 { return p.id }

// readPump reads subscribe requests from the peer until the connection
// closes, then unregisters it from the hub. Runs on the goroutine that
// called ServeHTTP.
func (p *Peer) readPump() {
	defer func() {
		p.hub.removePeer(p)
		p.conn.Close()
	}()

	p.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		var req subscribeRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		if req.Action == "subscribe" && req.Topic != "" {
			p.hub.subscribePeer(p, req.Topic)
		}
	}
}

// writePump drains the peer's send channel to the socket and sends
// periodic pings, closing the connection if either stalls. Runs on its
// own goroutine for the lifetime of the connection.
func (p *Peer) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
