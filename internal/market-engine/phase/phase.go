package phase

import (
	"fmt"
	"math"
	"time"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
)

// DefaultCutoff é a fração da duração em que a janela de apostas fecha
const DefaultCutoff = 0.5

// At deriva a fase a partir de (start, duração, now):
//
//	now < start                         -> NOT_STARTED
//	start <= now <= start+cutoff*dur    -> BETTING
//	start+cutoff*dur < now < start+dur  -> OBSERVATION
//	now >= start+dur                    -> RESOLVED
func At(start time.Time, durationMinutes int, now time.Time, cutoff float64) (domain.Phase, error) {
	if err := Validate(start, durationMinutes, cutoff); err != nil {
		return "", err
	}
	dur := time.Duration(durationMinutes) * time.Minute
	cut := start.Add(time.Duration(float64(dur) * cutoff))
	end := start.Add(dur)

	switch {
	case now.Before(start):
		return domain.PhaseNotStarted, nil
	case !now.After(cut):
		return domain.PhaseBetting, nil
	case now.Before(end):
		return domain.PhaseObservation, nil
	default:
		return domain.PhaseResolved, nil
	}
}

// Validate rejeita start ausente, duração não positiva e cutoff fora de (0,1]
func Validate(start time.Time, durationMinutes int, cutoff float64) error {
	if start.IsZero() {
		return fmt.Errorf("%w: start time required", domain.ErrInvalidMarketInput)
	}
	if durationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %d", domain.ErrInvalidMarketInput, durationMinutes)
	}
	if math.IsNaN(cutoff) || cutoff <= 0 || cutoff > 1 {
		return fmt.Errorf("%w: cutoff fraction %v", domain.ErrInvalidMarketInput, cutoff)
	}
	return nil
}

// ForMarket é At aplicado a um mercado
func ForMarket(m domain.Market, now time.Time, cutoff float64) (domain.Phase, error) {
	return At(m.StartTime, m.DurationMinutes, now, cutoff)
}

// BettingRemaining retorna a fração [0,1] da janela de apostas ainda disponível
func BettingRemaining(m domain.Market, now time.Time, cutoff float64) float64 {
	window := m.CutoffTime(cutoff).Sub(m.StartTime)
	if window <= 0 {
		return 0
	}
	left := m.CutoffTime(cutoff).Sub(now)
	switch {
	case left <= 0:
		return 0
	case left >= window:
		return 1
	}
	return float64(left) / float64(window)
}
