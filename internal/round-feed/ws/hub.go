package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

// client serializa as escritas: o gorilla aceita um único writer por conexão
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub gerencia conexões WebSocket e assinaturas por rodada
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu sync.RWMutex
	// roundID (ou AllRounds) -> conexões
	subs map[string]map[*client]struct{}

	OnConnect   func(delta int) // métricas
	OnBroadcast func()
}

// NewHub cria um Hub com política de origem customizada
func NewHub(allowOrigin func(r *http.Request) bool, log *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS mantém a conexão: subscribe/unsubscribe em rodadas e ping
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}
	defer conn.Close()
	h.connected(1)
	defer h.connected(-1)

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			h.subscribe(c, topic(msg.RoundID))
			h.reply(c, map[string]string{"type": "subscribed", "roundId": topic(msg.RoundID)})
		case "unsubscribe":
			h.unsubscribe(c, topic(msg.RoundID))
		case "ping":
			h.reply(c, map[string]string{"type": "pong"})
		}
	}

	// remove a conexão de todas as assinaturas
	h.mu.Lock()
	for id, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
	h.mu.Unlock()
}

func topic(roundID string) string {
	if roundID == "" {
		return AllRounds
	}
	return roundID
}

func (h *Hub) subscribe(c *client, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[id]; !ok {
		h.subs[id] = make(map[*client]struct{})
	}
	h.subs[id][c] = struct{}{}
}

func (h *Hub) unsubscribe(c *client, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.subs[id]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, id)
		}
	}
}

func (h *Hub) reply(c *client, v any) {
	b, _ := json.Marshal(v)
	_ = c.write(b)
}

func (h *Hub) connected(delta int) {
	if h.OnConnect != nil {
		h.OnConnect(delta)
	}
}

// Subscribers devolve quantas conexões recebem eventos da rodada
func (h *Hub) Subscribers(roundID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[*client]struct{})
	for c := range h.subs[roundID] {
		seen[c] = struct{}{}
	}
	for c := range h.subs[AllRounds] {
		seen[c] = struct{}{}
	}
	return len(seen)
}

// Broadcast envia o evento aos inscritos na rodada e aos inscritos em todas
func (h *Hub) Broadcast(update RoundUpdate) {
	h.mu.RLock()
	targets := make(map[*client]struct{})
	for c := range h.subs[update.RoundID] {
		targets[c] = struct{}{}
	}
	for c := range h.subs[AllRounds] {
		targets[c] = struct{}{}
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, err := json.Marshal(update)
	if err != nil {
		h.log.Error("marshal round update", zap.Error(err))
		return
	}
	for c := range targets {
		if err := c.write(b); err != nil {
			h.log.Debug("ws write failed", zap.Error(err))
		}
	}
	if h.OnBroadcast != nil {
		h.OnBroadcast()
	}
}
