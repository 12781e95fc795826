package httpapi

import (
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	engineodds "github.com/radieske/pump-rug-market-poc/internal/market-engine/odds"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/service"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/settlement"
	"github.com/radieske/pump-rug-market-poc/internal/market-service/dto"
)

func marketResponse(m domain.Market) dto.MarketResponse {
	out := dto.MarketResponse{
		ID:              m.ID,
		AssetRef:        m.AssetRef,
		StartTime:       m.StartTime,
		EndTime:         m.EndTime(),
		DurationMinutes: m.DurationMinutes,
		Phase:           string(m.Phase),
		MatchingState:   string(m.MatchingState),
		PumpPool:        m.PumpPool,
		RugPool:         m.RugPool,
		PumpMatched:     m.PumpMatched,
		RugMatched:      m.RugMatched,
		PumpOdds:        m.PumpOdds,
		RugOdds:         m.RugOdds,
		Outcome:         string(m.Outcome),
	}
	if m.FinalPrice.Valid {
		p := m.FinalPrice.Decimal
		out.FinalPrice = &p
	}
	return out
}

func oddsResponse(marketID string, q engineodds.Quote) dto.OddsResponse {
	return dto.OddsResponse{MarketID: marketID, Pump: q.Pump, Rug: q.Rug}
}

func betResponse(b domain.Bet) dto.BetResponse {
	return dto.BetResponse{
		BetID:           b.ID,
		MarketID:        b.MarketID,
		UserID:          b.UserID,
		Side:            string(b.Side),
		GrossAmount:     b.GrossAmount,
		Fee:             b.Fee,
		NetAmount:       b.NetAmount,
		MatchedAmount:   b.MatchedAmount,
		Odds:            b.Odds,
		PotentialPayout: b.PotentialPayout,
		RefundAmount:    b.RefundAmount,
		PayoutAmount:    b.PayoutAmount,
		Status:          string(b.Status),
		CreatedAt:       b.CreatedAt,
	}
}

func betDetailsResponse(d service.BetDetails) dto.BetDetailsResponse {
	out := dto.BetDetailsResponse{
		BetResponse: betResponse(d.Bet),
		Units:       make([]dto.UnitResponse, 0, len(d.Units)),
		History:     make([]dto.HistoryResponse, 0, len(d.History)),
	}
	for _, u := range d.Units {
		out.Units = append(out.Units, dto.UnitResponse{
			UnitID:     u.ID,
			Amount:     u.Amount,
			Status:     string(u.Status),
			PeerUnitID: u.PeerUnitID,
		})
	}
	for _, h := range d.History {
		out.History = append(out.History, dto.HistoryResponse{
			From:          string(h.OldStatus),
			To:            string(h.NewStatus),
			MatchedAmount: h.MatchedAmount,
			Reason:        h.Reason,
			At:            h.CreatedAt,
		})
	}
	return out
}

func batchResponse(r *settlement.BatchReport) *dto.BatchResponse {
	out := &dto.BatchResponse{MarketID: r.MarketID, Processed: r.Processed, Skipped: r.Skipped}
	for _, f := range r.Failed {
		out.Failed = append(out.Failed, dto.FailureResponse{ID: f.ID, UserID: f.UserID, Error: f.Err.Error()})
	}
	return out
}
