package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yasserelgammal/rate-limiter/limiter"
	"github.com/yasserelgammal/rate-limiter/store"

	"wifirtt/internal/api"
	"wifirtt/internal/config"
	"wifirtt/internal/live"
	"wifirtt/internal/logging"
	"wifirtt/internal/model"
	"wifirtt/internal/probe"
	"wifirtt/internal/snapshot"
	"wifirtt/internal/topology"
)

// ErrRateLimited rejects an rtt query over the per-client budget.
var ErrRateLimited = errors.New("too many rtt requests")

// InvalidHostMessage is the 400 body for an rtt query whose host is not
// dotted IPv4. Existing viewers display it verbatim.
const InvalidHostMessage = "Invalid IP address"

// Session is the live broadcast session viewers attach to.
type Session interface {
	Connect(v live.Viewer) error
	Disconnect(v live.Viewer) error
	Status() (live.Status, error)
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Topology snapshot.Topology
	Measurer snapshot.Measurer
	Builder  live.Builder
	Session  Session
}

// Server provides the query API, the viewer stream and static assets.
type Server struct {
	cfg      config.ServerConfig
	deps     Deps
	run      func(ctx context.Context) error
	log      *slog.Logger
	upgrader websocket.Upgrader
	limiter  *limiter.TokenBucket // nil when rtt queries are unlimited
}

// NewServer wires the real collector, prober, snapshot builder and scheduler.
func NewServer(cfg config.ServerConfig, log *slog.Logger) *Server {
	log = logging.Or(log)
	collector := topology.NewCollector(cfg, nil, log.With("component", "topology"))
	prober := probe.New(probe.OptionsFromConfig(cfg), nil, nil, log.With("component", "probe"))
	builder := snapshot.NewBuilder(collector, prober, snapshot.STUNLookup(cfg.STUNServers, cfg.STUNTimeout), log.With("component", "snapshot"))
	scheduler := live.NewScheduler(builder, cfg.TickInterval, live.WithLogger(log.With("component", "live")))

	s := New(cfg, Deps{
		Topology: collector,
		Measurer: prober,
		Builder:  builder,
		Session:  scheduler,
	}, log)
	s.run = scheduler.Run
	return s
}

// New builds a Server over arbitrary collaborators.
func New(cfg config.ServerConfig, deps Deps, log *slog.Logger) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  logging.Or(log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			// Viewers are served from this same origin or run locally.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.limiter = newRTTLimiter(cfg, s.log)
	return s
}

// newRTTLimiter bounds on-demand probing per client, since every rtt query
// opens several connections and runs ping.
func newRTTLimiter(cfg config.ServerConfig, log *slog.Logger) *limiter.TokenBucket {
	if cfg.RTTRateLimit <= 0 {
		return nil
	}
	burst := cfg.RTTBurst
	if burst <= 0 {
		burst = 1
	}
	tb, err := limiter.NewTokenBucket(
		limiter.Config{
			Rate:     int64(cfg.RTTRateLimit),
			Duration: time.Minute,
			Burst:    int64(burst),
		},
		store.NewMemoryStore(time.Minute),
	)
	if err != nil {
		log.Warn("rtt rate limiting disabled", "err", err)
		return nil
	}
	return tb
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+api.PathScan, s.handleScan)
	mux.HandleFunc("GET "+api.PathRTT+"{host}", s.handleRTT)
	mux.HandleFunc("GET "+api.PathARP, s.handleARP)
	mux.HandleFunc("GET "+api.PathSnapshot, s.handleSnapshot)
	mux.HandleFunc("GET "+api.PathHealth, s.handleHealth)
	mux.HandleFunc("GET "+api.PathWatch, s.handleViewer)

	static := http.FileServer(http.Dir(s.cfg.StaticDir))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			s.handleViewer(w, r)
			return
		}
		static.ServeHTTP(w, r)
	})
	return mux
}

// ListenAndServe runs the scheduler and the HTTP server until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	server := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errC := make(chan error, 2)
	if s.run != nil {
		go func() {
			if err := s.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errC <- err
			}
		}()
	}
	go func() {
		errC <- server.ListenAndServe()
	}()

	s.log.Info("listening",
		"addr", s.cfg.Listen,
		"tick_interval", s.cfg.TickInterval,
		"static_dir", s.cfg.StaticDir)

	select {
	case <-ctx.Done():
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return server.Shutdown(shutdownCtx)
	case err := <-errC:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Topology.FetchScan(r.Context())
	if err != nil {
		s.log.Warn("scan failed", "err", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRTT(w http.ResponseWriter, r *http.Request) {
	host, err := probe.ValidateHost(r.PathValue("host"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, InvalidHostMessage)
		return
	}
	if s.limiter != nil && !s.limiter.Allow(clientKey(r)) {
		writeJSONError(w, http.StatusTooManyRequests, ErrRateLimited.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Measurer.MeasureHost(r.Context(), host))
}

func (s *Server) handleARP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Topology.FetchAddressTable(r.Context()))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Builder.Build(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st, err := s.deps.Session.Status()
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", State: st.State.String(), Viewers: st.Viewers})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, model.ErrorMessage{Error: message})
}
