package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"kylix/crypto"
	"kylix/native/assets"
	"kylix/native/lending"
	"kylix/numeric/fixed"
	"kylix/observability"
	"kylix/observability/logging"
	"kylix/services/lendingd/config"
)

const requestBodyLimit = 1 << 20 // 1 MiB

// Ledger is the transactional lending surface served over HTTP.
type Ledger interface {
	CreateLendingPool(who crypto.Address, id, asset assets.ID, balance *uint256.Int) error
	ActivateLendingPool(asset assets.ID) error
	DeactivateLendingPool(asset assets.ID) error
	UpdatePoolRateModel(asset assets.ID) error
	UpdatePoolKink(asset assets.ID) error
	Supply(who crypto.Address, asset assets.ID, balance *uint256.Int) error
	Withdraw(who crypto.Address, asset assets.ID, balance *uint256.Int) error
	Borrow(who crypto.Address, asset assets.ID, amount *uint256.Int, collateralAsset assets.ID, collateralAmount *uint256.Int) error
	Repay(who crypto.Address, asset assets.ID, amount *uint256.Int, collateralAsset assets.ID) error
	SetAssetPrice(asset, base assets.ID, price fixed.Rate) error

	Balance(id assets.ID, who crypto.Address) (*uint256.Int, error)
	GetAssetPrice(asset, base assets.ID) (fixed.Rate, error)
	EstimateCollateralAmount(borrowAsset assets.ID, amount *uint256.Int, collateralAsset assets.ID) (*uint256.Int, error)
	GetLendingPools(filter lending.PoolFilter) ([]lending.PoolSummary, lending.AggregatedTotals, error)
	GetUserLTV(account crypto.Address) (lending.UserLTV, error)
	GetAssetWiseSupplies(account crypto.Address) ([]lending.SuppliedAsset, *uint256.Int, error)
	GetAssetWiseBorrowsCollaterals(account crypto.Address) (lending.BorrowsCollaterals, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Ledger    Ledger
	Auth      config.AuthConfig
	RateLimit config.RateLimit
	Logger    *slog.Logger
	// Tracer defaults to the global provider's "lendingd-http" tracer.
	Tracer trace.Tracer
}

// Server exposes the lending ledger over JSON/HTTP.
type Server struct {
	ledger  Ledger
	auth    *authenticator
	limiter *rateLimiter
	logger  *slog.Logger
	tracer  trace.Tracer

	router http.Handler
}

// New constructs the HTTP router.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("lendingd-http")
	}
	srv := &Server{
		ledger:  cfg.Ledger,
		auth:    newAuthenticator(cfg.Auth),
		limiter: newRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst),
		logger:  logger.With(slog.String("component", "http")),
		tracer:  tracer,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(s.observe)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.limiter.middleware)
		api.Use(func(next http.Handler) http.Handler {
			return http.MaxBytesHandler(next, requestBodyLimit)
		})

		api.Get("/pools", s.listPools)
		api.Get("/accounts/{account}/ltv", s.userLTV)
		api.Get("/accounts/{account}/supplies", s.userSupplies)
		api.Get("/accounts/{account}/borrows", s.userBorrows)
		api.Get("/prices/{asset}/{base}", s.getPrice)
		api.Get("/estimate-collateral", s.estimateCollateral)
		api.Get("/balances/{account}/{asset}", s.getBalance)

		api.Group(func(protected chi.Router) {
			protected.Use(s.auth.middleware)
			protected.Post("/pools", s.createPool)
			protected.Post("/pools/{asset}/activate", s.activatePool)
			protected.Post("/pools/{asset}/deactivate", s.deactivatePool)
			protected.Post("/pools/{asset}/rate-model", s.updateRateModel)
			protected.Post("/pools/{asset}/kink", s.updateKink)
			protected.Post("/supply", s.supply)
			protected.Post("/withdraw", s.withdraw)
			protected.Post("/borrow", s.borrow)
			protected.Post("/repay", s.repay)
			protected.Post("/prices", s.setPrice)
		})
	})
	return r
}

type requestIDKey struct{}

// requestID propagates the caller's X-Request-ID or assigns a fresh one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(chimw.RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(chimw.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFrom returns the id assigned to the request carried by ctx.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := s.tracer.Start(ctx, r.Method, trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.request_id", RequestIDFrom(ctx)),
			))
		defer span.End()
		r = r.WithContext(ctx)
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		observability.HTTP().Observe(route, status, elapsed)

		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.LogAttrs(r.Context(), level, "http request",
			slog.String("request_id", RequestIDFrom(r.Context())),
			slog.String("route", route),
			slog.Int("status", status),
			logging.MaskField("remote", r.RemoteAddr),
			slog.Duration("elapsed", elapsed))
	})
}
