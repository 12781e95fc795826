package ws

import "github.com/radieske/pump-rug-market-poc/pkg/contracts/events"

// AllMarkets assina todos os mercados
const AllMarkets = "*"

// ClientMsg representa uma mensagem recebida do cliente WebSocket
type ClientMsg struct {
	Type     string `json:"type"`     // subscribe | unsubscribe | ping
	MarketID string `json:"marketId"` // requerido em subscribe/unsubscribe; "*" para todos
}

// MarketUpdate é o que o event-processor publica no Redis e o hub repassa
type MarketUpdate struct {
	MarketID string          `json:"marketId"`
	Type     string          `json:"type"`
	Payload  events.Envelope `json:"payload"`
}
