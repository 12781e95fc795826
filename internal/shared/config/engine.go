package config

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/pump-rug-market-poc/internal/shared/retry"
)

// Engine enumera os parâmetros do motor de apostas PUMP/RUG
type Engine struct {
	FeeRate        decimal.Decimal // taxa da plataforma sobre o valor bruto (0.01 = 1%)
	UnitSize       decimal.Decimal // tamanho máximo de uma unidade (1.0)
	MinUnitSize    decimal.Decimal // menor unidade casável (0.05)
	MinBetAmount   decimal.Decimal
	MaxBetAmount   decimal.Decimal // 101 unidades
	MaxUnitsPerBet int             // 100

	CutoffFraction  float64 // fração da duração em que o casamento é permitido (0.5)
	MatchBatchLimit int     // máximo de apostas travadas por passada
	MatchOnIntake   bool    // roda uma passada de casamento logo após placeBet

	SplitRetry retry.Policy // persistência das unidades
	TxRetry    retry.Policy // conflitos de serialização / deadlock

	RefundConcurrency int
	PayoutConcurrency int

	Odds    Odds
	Outcome Outcome

	OracleRPS     float64
	OracleBurst   int
	OracleTimeout time.Duration
}

// Odds controla o multiplicador dinâmico
type Odds struct {
	Base      decimal.Decimal // pool vazio ou equilibrado
	Min       decimal.Decimal
	Max       decimal.Decimal
	TimeBonus decimal.Decimal // bônus máximo no início da janela de apostas
}

// Outcome contém pesos e limiares do avaliador de resultado
type Outcome struct {
	LiquidityWeight decimal.Decimal
	PriceWeight     decimal.Decimal
	PumpThreshold   decimal.Decimal
	RugThreshold    decimal.Decimal
	LiquidityFloor  decimal.Decimal
}

// DefaultEngine retorna os valores padrão documentados
func DefaultEngine() Engine {
	return Engine{
		FeeRate:        decimal.RequireFromString("0.01"),
		UnitSize:       decimal.NewFromInt(1),
		MinUnitSize:    decimal.RequireFromString("0.05"),
		MinBetAmount:   decimal.RequireFromString("0.05"),
		MaxBetAmount:   decimal.NewFromInt(101),
		MaxUnitsPerBet: 100,

		CutoffFraction:  0.5,
		MatchBatchLimit: 500,
		MatchOnIntake:   true,

		SplitRetry: retry.Policy{Attempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Jitter: 0.2},
		TxRetry:    retry.Policy{Attempts: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, Jitter: 0.2},

		RefundConcurrency: 8,
		PayoutConcurrency: 8,

		Odds: Odds{
			Base:      decimal.NewFromInt(2),
			Min:       decimal.RequireFromString("1.05"),
			Max:       decimal.NewFromInt(10),
			TimeBonus: decimal.RequireFromString("0.10"),
		},
		Outcome: Outcome{
			LiquidityWeight: decimal.RequireFromString("0.7"),
			PriceWeight:     decimal.RequireFromString("0.3"),
			PumpThreshold:   decimal.RequireFromString("1.15"),
			RugThreshold:    decimal.RequireFromString("0.85"),
			LiquidityFloor:  decimal.RequireFromString("0.1"),
		},

		OracleRPS:     5,
		OracleBurst:   5,
		OracleTimeout: 3 * time.Second,
	}
}

// loadEngine aplica overrides de ambiente sobre DefaultEngine
func loadEngine() Engine {
	e := DefaultEngine()

	e.FeeRate = getEnvDecimal("ENGINE_FEE_RATE", e.FeeRate)
	e.UnitSize = getEnvDecimal("ENGINE_UNIT_SIZE", e.UnitSize)
	e.MinUnitSize = getEnvDecimal("ENGINE_MIN_UNIT_SIZE", e.MinUnitSize)
	e.MinBetAmount = getEnvDecimal("ENGINE_MIN_BET", e.MinBetAmount)
	e.MaxBetAmount = getEnvDecimal("ENGINE_MAX_BET", e.MaxBetAmount)
	e.MaxUnitsPerBet = getEnvInt("ENGINE_MAX_UNITS", e.MaxUnitsPerBet)

	e.CutoffFraction = getEnvFloat("ENGINE_CUTOFF_FRACTION", e.CutoffFraction)
	e.MatchBatchLimit = getEnvInt("ENGINE_MATCH_BATCH", e.MatchBatchLimit)
	e.MatchOnIntake = getEnvBool("ENGINE_MATCH_ON_INTAKE", e.MatchOnIntake)

	e.SplitRetry.Attempts = getEnvInt("ENGINE_SPLIT_RETRY_ATTEMPTS", e.SplitRetry.Attempts)
	e.SplitRetry.BaseDelay = getEnvDuration("ENGINE_SPLIT_RETRY_BASE", e.SplitRetry.BaseDelay)
	e.SplitRetry.MaxDelay = getEnvDuration("ENGINE_SPLIT_RETRY_MAX", e.SplitRetry.MaxDelay)
	e.TxRetry.Attempts = getEnvInt("ENGINE_TX_RETRY_ATTEMPTS", e.TxRetry.Attempts)
	e.TxRetry.BaseDelay = getEnvDuration("ENGINE_TX_RETRY_BASE", e.TxRetry.BaseDelay)
	e.TxRetry.MaxDelay = getEnvDuration("ENGINE_TX_RETRY_MAX", e.TxRetry.MaxDelay)

	e.RefundConcurrency = getEnvInt("ENGINE_REFUND_CONCURRENCY", e.RefundConcurrency)
	e.PayoutConcurrency = getEnvInt("ENGINE_PAYOUT_CONCURRENCY", e.PayoutConcurrency)

	e.Odds.Base = getEnvDecimal("ENGINE_ODDS_BASE", e.Odds.Base)
	e.Odds.Min = getEnvDecimal("ENGINE_ODDS_MIN", e.Odds.Min)
	e.Odds.Max = getEnvDecimal("ENGINE_ODDS_MAX", e.Odds.Max)
	e.Odds.TimeBonus = getEnvDecimal("ENGINE_ODDS_TIME_BONUS", e.Odds.TimeBonus)

	e.Outcome.LiquidityWeight = getEnvDecimal("ENGINE_OUTCOME_LIQ_WEIGHT", e.Outcome.LiquidityWeight)
	e.Outcome.PriceWeight = getEnvDecimal("ENGINE_OUTCOME_PRICE_WEIGHT", e.Outcome.PriceWeight)
	e.Outcome.PumpThreshold = getEnvDecimal("ENGINE_OUTCOME_PUMP", e.Outcome.PumpThreshold)
	e.Outcome.RugThreshold = getEnvDecimal("ENGINE_OUTCOME_RUG", e.Outcome.RugThreshold)
	e.Outcome.LiquidityFloor = getEnvDecimal("ENGINE_OUTCOME_LIQ_FLOOR", e.Outcome.LiquidityFloor)

	e.OracleRPS = getEnvFloat("ORACLE_RPS", e.OracleRPS)
	e.OracleBurst = getEnvInt("ORACLE_BURST", e.OracleBurst)
	e.OracleTimeout = getEnvDuration("ORACLE_TIMEOUT", e.OracleTimeout)

	return e
}
