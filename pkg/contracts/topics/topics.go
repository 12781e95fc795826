package topics

const (
	// Eventos do motor de mercado (bets, matches, fases, liquidação)
	MarketEvents = "market_events"

	// Canal Redis Pub/Sub consumido pelo live-service/ws
	LiveBroadcast = "market_live_broadcast"
)
