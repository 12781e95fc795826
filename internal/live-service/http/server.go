package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/pkg/contracts/events"
)

const (
	refillTTL    = 30 * time.Second
	defaultLimit = 100
	maxLimit     = 1000
)

// ReadRepo é a leitura do Postgres alimentado pelo event-processor
type ReadRepo interface {
	ListMarkets(ctx context.Context, phase string, limit int) ([]events.MarketView, error)
	GetMarket(ctx context.Context, marketID string) (*events.MarketView, error)
	ListEvents(ctx context.Context, marketID string, limit int) ([]events.Envelope, error)
}

type Cache interface {
	GetMarket(ctx context.Context, marketID string) (*events.MarketView, bool, error)
	SetMarket(ctx context.Context, v events.MarketView, ttl time.Duration) error
}

// API expõe a visão ao vivo dos mercados: REST com cache Redis na frente do
// Postgres e o WebSocket do hub
type API struct {
	ReadRepo ReadRepo     // acesso ao banco de dados
	Cache    Cache        // cache da visão ao vivo
	WS       http.Handler // hub WebSocket
	Log      *zap.Logger

	OnCache func(hit bool) // métricas, opcional
}

// Router retorna o roteador HTTP com os endpoints REST e o /ws
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/v1/markets", a.listMarkets)            // visões correntes
	r.Get("/v1/markets/{id}", a.getMarket)         // visão de um mercado
	r.Get("/v1/markets/{id}/events", a.listEvents) // log de eventos
	if a.WS != nil {
		r.Handle("/ws", a.WS)
	}
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (a *API) listMarkets(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	mk, err := a.ReadRepo.ListMarkets(r.Context(), r.URL.Query().Get("phase"), limit)
	if err != nil {
		a.log().Error("list markets", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, mk)
}

// getMarket lê do cache e cai no banco quando não há entrada
func (a *API) getMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}

	v, hit, err := a.Cache.GetMarket(r.Context(), id)
	if err != nil {
		a.log().Warn("cache get market", zap.String("market_id", id), zap.Error(err))
	}
	if a.OnCache != nil {
		a.OnCache(hit)
	}
	if hit {
		writeJSON(w, http.StatusOK, v)
		return
	}

	v, err = a.ReadRepo.GetMarket(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "market not found")
		return
	}
	if err != nil {
		a.log().Error("get market", zap.String("market_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := a.Cache.SetMarket(r.Context(), *v, refillTTL); err != nil {
		a.log().Warn("cache refill market", zap.String("market_id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	limit, ok := parseLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	evs, err := a.ReadRepo.ListEvents(r.Context(), id, limit)
	if err != nil {
		a.log().Error("list events", zap.String("market_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

func marketID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return "", false
	}
	return id, true
}

func parseLimit(r *http.Request) (int, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, true
}

func (a *API) log() *zap.Logger {
	if a.Log == nil {
		return zap.NewNop()
	}
	return a.Log
}
