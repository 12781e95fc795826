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

// client serializa as escritas numa conexão; gorilla aceita um único escritor
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

// Hub gerencia conexões WebSocket e assinaturas por mercado
// subs: marketID (ou "*") -> conjunto de clientes inscritos
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{}

	OnBroadcast func(delivered int) // métricas, opcional
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
// Cada cliente pode se inscrever em vários mercados
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn}
	defer func() {
		h.drop(c)
		_ = conn.Close()
	}()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "subscribe":
			if msg.MarketID == "" {
				h.reply(c, map[string]string{"type": "error", "error": "marketId required"})
				continue
			}
			h.subscribe(c, msg.MarketID)
			h.reply(c, map[string]string{"type": "subscribed", "marketId": msg.MarketID})
		case "unsubscribe":
			h.unsubscribe(c, msg.MarketID)
			h.reply(c, map[string]string{"type": "unsubscribed", "marketId": msg.MarketID})
		case "ping":
			h.reply(c, map[string]string{"type": "pong"})
		default:
			h.reply(c, map[string]string{"type": "error", "error": "unknown message type"})
		}
	}
}

func (h *Hub) subscribe(c *client, marketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[marketID]; !ok {
		h.subs[marketID] = make(map[*client]struct{})
	}
	h.subs[marketID][c] = struct{}{}
}

func (h *Hub) unsubscribe(c *client, marketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[marketID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, marketID)
		}
	}
}

// drop remove o cliente de todas as assinaturas ao desconectar
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
}

func (h *Hub) reply(c *client, v any) {
	b, _ := json.Marshal(v)
	_ = c.write(b)
}

// Subscribers conta os clientes inscritos em um mercado, sem o curinga
func (h *Hub) Subscribers(marketID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[marketID])
}

// Broadcast envia a atualização aos inscritos no mercado e no curinga
func (h *Hub) Broadcast(update MarketUpdate) int {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.subs[update.MarketID])+len(h.subs[AllMarkets]))
	seen := map[*client]bool{}
	for _, key := range []string{update.MarketID, AllMarkets} {
		for c := range h.subs[key] {
			if !seen[c] {
				seen[c] = true
				targets = append(targets, c)
			}
		}
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return 0
	}

	b, err := json.Marshal(update)
	if err != nil {
		h.log.Warn("marshal ws update", zap.Error(err))
		return 0
	}
	delivered := 0
	for _, c := range targets {
		if err := c.write(b); err != nil {
			h.log.Debug("ws write failed", zap.String("market_id", update.MarketID), zap.Error(err))
			continue
		}
		delivered++
	}
	if h.OnBroadcast != nil {
		h.OnBroadcast(delivered)
	}
	return delivered
}
