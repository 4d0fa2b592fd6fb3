// Package broadcast implements quids's peer-broadcast surface (§5,
// "Peer broadcast"): `broadcast(topic, bytes)` / `subscribe(topic,
// handler)` over the topics `tx`, `state_update`, `bridge_msg`, and
// `witness_vote`. Hub fans a published message out to both in-process
// handlers and any peer connected over WebSocket, and implements
// rollup.Broadcaster so BatchProcessor can publish through it directly.
//
// Grounded on the teacher's rpc/websocket_handler.go connection
// registry (per-connection send channel, subscription set, rate
// limiting) generalized from a JSON-RPC notification fan-out to a
// general topic pub/sub hub, now actually performing the
// github.com/gorilla/websocket upgrade the teacher's version only
// described in a comment.
package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Topics used by the core (§5).
const (
	TopicTx          = "tx"
	TopicStateUpdate = "state_update"
	TopicBridgeMsg   = "bridge_msg"
	TopicWitnessVote = "witness_vote"
)

const (
	writeTimeout   = 10 * time.Second
	pingInterval   = 30 * time.Second
	pongTimeout    = 60 * time.Second
	sendBufferSize = 256
)

// envelope is the wire frame delivered to WebSocket peers: a topic tag
// alongside the raw published payload.
type envelope struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

// Hub is a topic pub/sub broadcaster. The zero value is not usable; use
// NewHub.
type Hub struct {
	mu       sync.RWMutex
	peers    map[uint64]*Peer
	subs     map[string]map[*Peer]struct{}
	handlers map[string][]func([]byte)
	nextID   atomic.Uint64
	upgrader websocket.Upgrader
}

// NewHub creates an empty Hub ready to accept WebSocket upgrades and
// local subscriptions.
func NewHub() *Hub {
	return &Hub{
		peers:    make(map[uint64]*Peer),
		subs:     make(map[string]map[*Peer]struct{}),
		handlers: make(map[string][]func([]byte)),
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
	}
}

// Subscribe registers handler to be invoked, synchronously on the
// publishing goroutine, with the raw payload of every message published
// to topic from this point on.
func (h *Hub) Subscribe(topic string, handler func(payload []byte)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[topic] = append(h.handlers[topic], handler)
}

// Publish implements rollup.Broadcaster: it delivers payload to every
// local handler subscribed to topic and queues it for every connected
// peer subscribed to topic. A peer whose send buffer is full is skipped
// rather than blocking the publisher.
func (h *Hub) Publish(topic string, payload []byte) error {
	h.mu.RLock()
	handlers := h.handlers[topic]
	peers := make([]*Peer, 0, len(h.subs[topic]))
	for p := range h.subs[topic] {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(payload)
	}

	if len(peers) == 0 {
		return nil
	}
	data, err := json.Marshal(envelope{Topic: topic, Payload: payload})
	if err != nil {
		return err
	}
	for _, p := range peers {
		select {
		case p.send <- data:
		default:
		}
	}
	return nil
}

// PeerCount returns the number of currently connected WebSocket peers.
func (h *Hub) PeerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// ServeHTTP upgrades the request to a WebSocket connection and runs the
// peer's read/write pumps until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	peer := h.addPeer(conn)
	go peer.writePump()
	peer.readPump()
}

func (h *Hub) addPeer(conn *websocket.Conn) *Peer {
	p := &Peer{
		id:     h.nextID.Add(1),
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		topics: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.peers[p.id] = p
	h.mu.Unlock()
	return p
}

func (h *Hub) removePeer(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, p.id)
	for topic := range p.topics {
		delete(h.subs[topic], p)
	}
}

func (h *Hub) subscribePeer(p *Peer, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*Peer]struct{})
	}
	h.subs[topic][p] = struct{}{}
	p.topics[topic] = struct{}{}
}
