package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketView é o estado do mercado publicado para o live-service
type MarketView struct {
	ID            string           `json:"id"`
	AssetRef      string           `json:"asset_ref"`
	Phase         string           `json:"phase"`
	MatchingState string           `json:"matching_state"`
	StartTime     time.Time        `json:"start_time"`
	EndTime       time.Time        `json:"end_time"`
	PumpPool      decimal.Decimal  `json:"pump_pool"`
	RugPool       decimal.Decimal  `json:"rug_pool"`
	PumpMatched   decimal.Decimal  `json:"pump_matched"`
	RugMatched    decimal.Decimal  `json:"rug_matched"`
	PumpOdds      decimal.Decimal  `json:"pump_odds"`
	RugOdds       decimal.Decimal  `json:"rug_odds"`
	Outcome       string           `json:"outcome,omitempty"`
	FinalPrice    *decimal.Decimal `json:"final_price,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Version       int64            `json:"version"` // ms do evento; descarta atualização fora de ordem
}

type PhaseChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}
