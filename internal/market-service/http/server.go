package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/matching"
	engineodds "github.com/radieske/pump-rug-market-poc/internal/market-engine/odds"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/phase"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/service"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/settlement"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
	"github.com/radieske/pump-rug-market-poc/internal/market-service/dto"
	"github.com/radieske/pump-rug-market-poc/internal/market-service/odds"
)

// Engine é o subconjunto da fachada do motor usado pela API
type Engine interface {
	CreateMarket(ctx context.Context, in service.CreateMarketInput) (domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	QuoteOdds(ctx context.Context, marketID string) (engineodds.Quote, error)
	PlaceBet(ctx context.Context, in service.PlaceBetInput) (domain.Bet, error)
	GetBet(ctx context.Context, id string) (service.BetDetails, error)
	RunMatchingPass(ctx context.Context, marketID string) (matching.Result, error)
	CheckPhase(ctx context.Context, marketID string) (phase.Transition, error)
	ResolveMarket(ctx context.Context, marketID string) (service.Resolution, error)
	RefundMarket(ctx context.Context, marketID string) (*settlement.RefundReport, error)
	SettleMarket(ctx context.Context, marketID string) (service.SettleResult, error)
}

// Server expõe o motor de mercados PUMP/RUG via REST
type Server struct {
	log      *zap.Logger
	engine   Engine
	guard    *odds.Guard
	validate *validator.Validate
}

func NewServer(log *zap.Logger, e Engine, g *odds.Guard) *Server {
	v := validator.New()
	// erros de validação com o nome do campo JSON
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{log: log, engine: e, guard: g, validate: v}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/v1/markets", func(r chi.Router) {
		r.Post("/", s.createMarket)
		r.Get("/{id}", s.getMarket)
		r.Get("/{id}/odds", s.getOdds)
		r.Post("/{id}/bets", s.placeBet)
		r.Post("/{id}/match", s.runMatching)
		r.Post("/{id}/check-phase", s.checkPhase)
		r.Post("/{id}/resolve", s.resolve)
		r.Post("/{id}/refunds", s.refunds)
		r.Post("/{id}/settlement", s.settle)
	})
	r.Get("/v1/bets/{id}", s.getBet)
	return r
}

func (s *Server) createMarket(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateMarketRequest
	if !s.decode(w, r, &req) {
		return
	}
	m, err := s.engine.CreateMarket(r.Context(), service.CreateMarketInput{
		AssetRef:        req.AssetRef,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, marketResponse(m))
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.GetMarket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, marketResponse(m))
}

func (s *Server) getOdds(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q, err := s.engine.QuoteOdds(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, oddsResponse(id, q))
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "id")
	var req dto.PlaceBetRequest
	if !s.decode(w, r, &req) {
		return
	}
	side := domain.Side(req.Side)

	// 1) slippage: odds vistas pelo cliente x correntes
	if q, err := s.guard.Check(r.Context(), marketID, side, req.ExpectedOdds); err != nil {
		if odds.IsOddsChanged(err) {
			cur := oddsResponse(marketID, q)
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: err.Error(), CurrentOdds: &cur})
			return
		}
		s.fail(w, r, err)
		return
	}

	// 2) débito, unidades e casamento na entrada
	b, err := s.engine.PlaceBet(r.Context(), service.PlaceBetInput{
		MarketID: marketID,
		UserID:   req.UserID,
		Side:     side,
		Amount:   req.Amount,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, betResponse(b))
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	d, err := s.engine.GetBet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, betDetailsResponse(d))
}

func (s *Server) runMatching(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.RunMatchingPass(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.MatchPassResponse{
		MarketID: res.MarketID,
		Skipped:  res.Skipped,
		Matches:  len(res.Matches),
		Splits:   res.Splits,
		Volume:   res.Volume,
		Odds:     oddsResponse(res.MarketID, res.Odds),
	})
}

func (s *Server) checkPhase(w http.ResponseWriter, r *http.Request) {
	tr, err := s.engine.CheckPhase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.PhaseResponse{
		MarketID: tr.MarketID,
		From:     string(tr.From),
		To:       string(tr.To),
		Changed:  tr.Changed,
		Skipped:  tr.Skipped,
	})
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.ResolveMarket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := dto.ResolutionResponse{MarketID: res.MarketID, Outcome: string(res.Outcome), FinalPrice: res.FinalPrice}
	if res.Detail != nil {
		out.LiquidityChange = &res.Detail.LiquidityChange
		out.PriceChangePct = &res.Detail.PriceChangePct
		out.CombinedMovement = &res.Detail.CombinedMovement
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) refunds(w http.ResponseWriter, r *http.Request) {
	rep, err := s.engine.RefundMarket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, batchStatus(rep.Failed != nil), batchResponse(&rep.BatchReport))
}

func (s *Server) settle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.engine.SettleMarket(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := dto.SettlementResponse{MarketID: id}
	if res.Settle != nil {
		out.Outcome = string(res.Settle.Outcome)
		out.Winners = res.Settle.Winners
		out.Losers = res.Settle.Losers
	}
	failed := false
	if res.Payouts != nil {
		out.Payouts = batchResponse(&res.Payouts.BatchReport)
		failed = res.Payouts.Failed != nil
	}
	writeJSON(w, batchStatus(failed), out)
}

// decode lê o JSON e valida as tags; responde 400 e retorna false em erro
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) {
			msgs := make([]string, 0, len(fields))
			for _, f := range fields {
				msgs = append(msgs, f.Field()+": "+f.Tag())
			}
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid payload: " + strings.Join(msgs, ", ")})
			return false
		}
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, code, dto.ErrorResponse{Error: err.Error()})
}

// statusFor mapeia a categoria do erro para o status HTTP
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, store.ErrRowLocked):
		return http.StatusConflict
	case errors.Is(err, domain.ErrOracleData):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// batchStatus: 207 quando parte do lote falhou
func batchStatus(failed bool) int {
	if failed {
		return http.StatusMultiStatus
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
