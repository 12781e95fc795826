package main

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/internal/shared/config"
	"github.com/radieske/pump-rug-market-poc/internal/shared/logger"
	"github.com/radieske/pump-rug-market-poc/internal/shared/metrics"
)

func rp(to string) *httputil.ReverseProxy {
	u, err := url.Parse(to)
	if err != nil {
		panic(err)
	}
	return httputil.NewSingleHostReverseProxy(u)
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	_ = metrics.StartMetricsServer(cfg.MetricsPort, log)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("api-gateway listening",
		zap.String("addr", srv.Addr),
		zap.String("market", cfg.MarketURL),
		zap.String("wallet", cfg.WalletURL),
		zap.String("live", cfg.LiveURL),
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("gateway failed", zap.Error(err))
	}
}

func router(cfg config.Config) http.Handler {
	market := rp(cfg.MarketURL)
	wallet := rp(cfg.WalletURL)
	live := rp(cfg.LiveURL)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(withCORS)

	// markets/bets (ex.: /api/v1/markets/* -> market-service)
	r.Handle("/api/v1/markets", http.StripPrefix("/api", market))
	r.Handle("/api/v1/markets/*", http.StripPrefix("/api", market))
	r.Handle("/api/v1/bets/*", http.StripPrefix("/api", market))

	// wallet (ex.: /api/wallet/* -> wallet-service)
	r.Handle("/api/wallet", http.StripPrefix("/api", wallet))
	r.Handle("/api/wallet/*", http.StripPrefix("/api", wallet))

	// visão ao vivo e /ws (ex.: /api/live/v1/markets -> live-service)
	r.Handle("/api/live/*", http.StripPrefix("/api/live", live))
	return r
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
