package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side é o lado da aposta
type Side string

const (
	SidePump Side = "PUMP"
	SideRug  Side = "RUG"
)

func (s Side) Valid() bool { return s == SidePump || s == SideRug }

func (s Side) Opposite() Side {
	if s == SidePump {
		return SideRug
	}
	return SidePump
}

// BetStatus: PENDING -> PARTIALLY_MATCHED -> MATCHED durante o casamento;
// WON/LOST/REFUNDED/CANCELED/EXPIRED na finalização
type BetStatus string

const (
	BetPending          BetStatus = "PENDING"
	BetPartiallyMatched BetStatus = "PARTIALLY_MATCHED"
	BetMatched          BetStatus = "MATCHED"
	BetWon              BetStatus = "WON"
	BetLost             BetStatus = "LOST"
	BetRefunded         BetStatus = "REFUNDED"
	BetCanceled         BetStatus = "CANCELED"
	BetExpired          BetStatus = "EXPIRED"
)

type UnitStatus string

const (
	UnitPending UnitStatus = "PENDING"
	UnitMatched UnitStatus = "MATCHED"
)

// Phase é o ciclo de vida do mercado
type Phase string

const (
	PhaseNotStarted  Phase = "NOT_STARTED"
	PhaseBetting     Phase = "BETTING"
	PhaseObservation Phase = "OBSERVATION"
	PhaseResolved    Phase = "RESOLVED"
	PhaseSettled     Phase = "SETTLED"
)

// Rank ordena as fases; fase desconhecida retorna -1
func (p Phase) Rank() int {
	switch p {
	case PhaseNotStarted:
		return 0
	case PhaseBetting:
		return 1
	case PhaseObservation:
		return 2
	case PhaseResolved:
		return 3
	case PhaseSettled:
		return 4
	}
	return -1
}

type MatchingState string

const (
	MatchingOpen   MatchingState = "MATCHING"
	MatchingLocked MatchingState = "LOCKED"
)

type Outcome string

const (
	OutcomePump  Outcome = "PUMP"
	OutcomeRug   Outcome = "RUG"
	OutcomeHouse Outcome = "HOUSE"
)

// Wins indica se o lado vence com este resultado (HOUSE: ninguém vence)
func (o Outcome) Wins(s Side) bool {
	return o != OutcomeHouse && string(o) == string(s)
}

type RefundStatus string

const RefundProcessed RefundStatus = "PROCESSED"

type PayoutStatus string

const (
	PayoutPending PayoutStatus = "PENDING"
	PayoutPaid    PayoutStatus = "PAID"
)

// Snapshot do oráculo; campos nil significam ausentes
type Snapshot struct {
	Liquidity *decimal.Decimal `json:"liquidity"`
	Price     *decimal.Decimal `json:"price"`
	MarketCap *decimal.Decimal `json:"marketCap"`
	BuyCount  *int64           `json:"buyCount"`
	SellCount *int64           `json:"sellCount"`
	Timestamp *time.Time       `json:"timestamp"`
}

// Market
type Market struct {
	ID              string
	AssetRef        string
	StartTime       time.Time
	DurationMinutes int
	Phase           Phase
	MatchingState   MatchingState

	PumpPool    decimal.Decimal // líquido apostado em PUMP
	RugPool     decimal.Decimal
	PumpMatched decimal.Decimal // volume casado em PUMP
	RugMatched  decimal.Decimal
	PumpOdds    decimal.Decimal // odds correntes
	RugOdds     decimal.Decimal

	InitialSnapshot Snapshot
	FinalSnapshot   *Snapshot
	FinalPrice      decimal.NullDecimal
	Outcome         Outcome // vazio até a resolução

	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt *time.Time
	SettledAt  *time.Time
}

func (m Market) Duration() time.Duration {
	return time.Duration(m.DurationMinutes) * time.Minute
}

func (m Market) EndTime() time.Time { return m.StartTime.Add(m.Duration()) }

// CutoffTime é o fim da janela de casamento
func (m Market) CutoffTime(fraction float64) time.Time {
	return m.StartTime.Add(time.Duration(float64(m.Duration()) * fraction))
}

func (m Market) OddsFor(s Side) decimal.Decimal {
	if s == SidePump {
		return m.PumpOdds
	}
	return m.RugOdds
}

// MarketDelta são incrementos atômicos sobre os agregados do mercado
type MarketDelta struct {
	PumpPool    decimal.Decimal
	RugPool     decimal.Decimal
	PumpMatched decimal.Decimal
	RugMatched  decimal.Decimal
}

// Bet
type Bet struct {
	ID       string
	MarketID string
	UserID   string
	Side     Side

	GrossAmount     decimal.Decimal
	Fee             decimal.Decimal
	NetAmount       decimal.Decimal
	MatchedAmount   decimal.Decimal
	Odds            decimal.Decimal // travada na colocação
	PotentialPayout decimal.Decimal
	RefundAmount    decimal.Decimal
	PayoutAmount    decimal.Decimal

	Status BetStatus

	CreatedAt  time.Time
	UpdatedAt  time.Time
	MatchedAt  *time.Time
	SettledAt  *time.Time
	RefundedAt *time.Time
}

// Unmatched é a parte líquida ainda não casada
func (b Bet) Unmatched() decimal.Decimal { return b.NetAmount.Sub(b.MatchedAmount) }

// BetUnit é o fragmento casável (<= 1.0) de uma aposta
type BetUnit struct {
	ID         string
	BetID      string
	MarketID   string
	Side       Side
	Amount     decimal.Decimal
	Status     UnitStatus
	PeerUnitID string
	CreatedAt  time.Time
	MatchedAt  *time.Time
}

// Match registra o par PUMP/RUG e as odds no momento do casamento
type Match struct {
	ID         string
	MarketID   string
	PumpUnitID string
	RugUnitID  string
	PumpBetID  string
	RugBetID   string
	Amount     decimal.Decimal
	PumpOdds   decimal.Decimal
	RugOdds    decimal.Decimal
	CreatedAt  time.Time
}

func (m Match) BetFor(s Side) string {
	if s == SidePump {
		return m.PumpBetID
	}
	return m.RugBetID
}

func (m Match) OddsFor(s Side) decimal.Decimal {
	if s == SidePump {
		return m.PumpOdds
	}
	return m.RugOdds
}

type Refund struct {
	ID          string
	BetID       string
	UserID      string
	MarketID    string
	Amount      decimal.Decimal
	Status      RefundStatus
	TxMarker    string
	CreatedAt   time.Time
	ProcessedAt time.Time
}

// StatusHistory é append-only
type StatusHistory struct {
	ID            string
	BetID         string
	OldStatus     BetStatus // vazio na criação
	NewStatus     BetStatus
	MatchedAmount decimal.Decimal
	NetAmount     decimal.Decimal
	Reason        string
	CreatedAt     time.Time
}

// Payout agrega o crédito de um usuário em um mercado liquidado
type Payout struct {
	ID        string
	MarketID  string
	UserID    string
	Amount    decimal.Decimal
	BetIDs    []string
	Status    PayoutStatus
	Attempts  int
	LastError string
	CreatedAt time.Time
	PaidAt    *time.Time
}

// Clock é substituível em testes
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
