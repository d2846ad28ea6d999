package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"jointPacks/internal/dashboard"
	"jointPacks/internal/model"
	"jointPacks/internal/reward"
)

// Board is the leaderboard state served over HTTP.
type Board interface {
	Bound() bool
	Snapshot() dashboard.Snapshot
	Leaderboard(limit int) []model.LeaderboardEntry
	AccountTotal(account string) (model.LeaderboardEntry, bool)
	Holdings(ctx context.Context, owner string) ([]model.Pack, error)
	Refresh(reason string)
}

var _ Board = (*dashboard.Board)(nil)

// Config tunes the HTTP surface.
type Config struct {
	// RateLimit is requests per second per IP; zero disables limiting.
	RateLimit float64
	RateBurst int
	Limit     int
}

// Server exposes the leaderboard, holdings and pack-open sessions.
type Server struct {
	cfg      Config
	board    Board
	sessions *reward.Sessions
	gatherer prometheus.Gatherer
	logger   *zap.Logger

	// runs owns pack-open goroutines; it outlives individual requests.
	runs context.Context
	wg   sync.WaitGroup

	mu      sync.RWMutex
	poller  *reward.Poller
	account string
}

// NewServer builds a Server. Open sessions started through the API run
// under ctx and stop when it ends.
func NewServer(ctx context.Context, cfg Config, board Board, sessions *reward.Sessions, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if cfg.Limit <= 0 {
		cfg.Limit = reward.DefaultLeaderboardSize
	}
	if sessions == nil {
		sessions = reward.NewSessions(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		board:    board,
		sessions: sessions,
		gatherer: gatherer,
		logger:   logger,
		runs:     ctx,
	}
}

// SetOpener enables POST /packs/{tokenId}/open, opening packs as account.
// A nil poller disables it again.
func (s *Server) SetOpener(poller *reward.Poller, account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poller = poller
	s.account = reward.NormalizeAccount(account)
}

func (s *Server) opener() (*reward.Poller, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.poller, s.account
}

// Wait blocks until every open session started by the server finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(NewIPRateLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst).Middleware)
		}

		r.Get("/sessions/{id}", s.handleSession)

		r.Group(func(r chi.Router) {
			r.Use(s.requireBound)
			r.Get("/leaderboard", s.handleLeaderboard)
			r.Get("/accounts/{account}/rewards", s.handleAccountRewards)
			r.Get("/accounts/{account}/packs", s.handleAccountPacks)
			r.Post("/packs/{tokenId}/open", s.handleOpen)
			r.Post("/refresh", s.handleRefresh)
		})
	})

	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
