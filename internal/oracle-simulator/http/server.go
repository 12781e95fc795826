package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/internal/oracle-simulator/feed"
)

// ScenarioReq troca o viés do ativo: pump | rug | flat | blackout
type ScenarioReq struct {
	Scenario string `json:"scenario"`
}

type Server struct {
	Feed *feed.Feed
	Log  *zap.Logger

	OnSnapshot func(asset string) // métricas, opcional
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/oracle/assets", s.listAssets)
	r.Get("/oracle/snapshot/{asset}", s.snapshot)
	r.Post("/oracle/assets/{asset}/scenario", s.setScenario)
	return r
}

func (s *Server) listAssets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Feed.Assets())
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	asset := strings.ToUpper(chi.URLParam(r, "asset"))
	if s.OnSnapshot != nil {
		s.OnSnapshot(asset)
	}
	writeJSON(w, http.StatusOK, s.Feed.Snapshot(asset))
}

func (s *Server) setScenario(w http.ResponseWriter, r *http.Request) {
	asset := strings.ToUpper(chi.URLParam(r, "asset"))
	var req ScenarioReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	sc, err := feed.ParseScenario(req.Scenario)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.Feed.SetScenario(asset, sc)
	if s.Log != nil {
		s.Log.Info("scenario changed", zap.String("asset", asset), zap.String("scenario", string(sc)))
	}
	writeJSON(w, http.StatusOK, map[string]string{"asset": asset, "scenario": string(sc)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
