// Package routes exposes the exchange over HTTP and a websocket event stream.
package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"p2pexchange/core"
	"p2pexchange/core/events"
	"p2pexchange/gateway/auth"
	"p2pexchange/gateway/middleware"
	"p2pexchange/native/common"
	"p2pexchange/storage/eventlog"
)

type Config struct {
	Exchange    *core.Exchange
	Verifier    *auth.Verifier
	RateLimits  map[string]middleware.RateLimit
	CORS        middleware.CORSConfig
	Broadcaster *events.Broadcaster
	EventLog    *eventlog.Store
	Logger      *slog.Logger
}

type handlers struct {
	exchange    *core.Exchange
	broadcaster *events.Broadcaster
	eventLog    *eventlog.Store
	logger      *slog.Logger
}

// New assembles the gateway handler.
func New(cfg Config) (http.Handler, error) {
	if cfg.Exchange == nil {
		return nil, errors.New("routes: exchange required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("routes: verifier required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{
		exchange:    cfg.Exchange,
		broadcaster: cfg.Broadcaster,
		eventLog:    cfg.EventLog,
		logger:      logger,
	}
	obs := middleware.NewObservability(logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimits, logger)
	signed := middleware.Authenticate(cfg.Verifier, logger)
	module := func(r chi.Router, name string) {
		r.Use(obs.Middleware(name))
		r.Use(limiter.Middleware(name))
	}

	router := chi.NewRouter()
	router.Use(chimw.Recoverer)
	router.Use(middleware.CORS(cfg.CORS))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/admin", func(r chi.Router) {
		module(r, common.ModuleAdmin)
		r.Get("/", h.getAdmin)
		r.With(signed).Post("/initialize", h.initializeAdmin)
		r.With(signed).Post("/authorities", h.updateAuthorities)
	})

	router.Route("/offers", func(r chi.Router) {
		module(r, common.ModuleOffer)
		r.Get("/", h.listOffers)
		r.With(signed).Post("/", h.createOffer)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getOffer)
			r.Get("/escrow", h.getEscrow)
			r.Get("/dispute", h.getOfferDispute)
			r.Group(func(r chi.Router) {
				r.Use(signed)
				r.Post("/list", h.offerTransition(h.exchange.ListOffer))
				r.Post("/accept", h.acceptOffer)
				r.Post("/fiat-sent", h.offerTransition(h.exchange.MarkFiatSent))
				r.Post("/fiat-received", h.offerTransition(h.exchange.ConfirmFiatReceipt))
				r.Post("/release", h.offerTransition(h.exchange.ReleaseSol))
				r.Post("/cancel", h.offerTransition(h.exchange.CancelOffer))
				r.Post("/dispute", h.openDispute)
			})
		})
	})

	router.Route("/disputes/{id}", func(r chi.Router) {
		module(r, common.ModuleDispute)
		r.Get("/", h.getDispute)
		r.Get("/votes/{juror}", h.getVote)
		r.Group(func(r chi.Router) {
			r.Use(signed)
			r.Post("/jurors", h.assignJurors)
			r.Post("/evidence", h.submitEvidence)
			r.Post("/votes", h.castVote)
			r.Post("/verdict", h.disputeResolution(h.exchange.ExecuteVerdict))
			r.Post("/stalemate", h.disputeResolution(h.exchange.ResolveStalemate))
		})
	})

	router.Route("/reputation", func(r chi.Router) {
		module(r, common.ModuleReputation)
		r.With(signed).Post("/", h.createReputation)
		r.Get("/{user}", h.getReputation)
		r.With(signed).Post("/{user}", h.updateReputation)
	})

	router.Route("/rewards", func(r chi.Router) {
		module(r, common.ModuleRewards)
		r.With(signed).Post("/touch", h.touchRewards)
		r.Get("/{user}", h.getRewards)
	})

	router.Group(func(r chi.Router) {
		module(r, common.ModuleTransfer)
		r.With(signed).Post("/transfers", h.transfer)
		r.Get("/accounts/{addr}", h.getAccount)
		r.Get("/events", h.queryEvents)
		r.Get("/stream", h.stream)
	})

	return otelhttp.NewHandler(router, "p2p-gateway"), nil
}
