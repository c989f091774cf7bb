package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"stockchart/internal/indicator"
	"stockchart/internal/interval"
	"stockchart/internal/model"
	"stockchart/internal/settings"
	"stockchart/internal/watchlist"
)

// Poller is the part of the poller the gateway drives.
type Poller interface {
	Active() model.Key
	SetActive(ctx context.Context, stock string, code interval.Code) error
	LoadMore(ctx context.Context, stock string, code interval.Code, from int64) (bool, error)
	Snapshot() (resp model.SnapshotResponse, at time.Time, ok bool)
}

// SeriesSource reads cached series.
type SeriesSource interface {
	GetSeries(stock string, code interval.Code) (model.Series, bool)
}

// Config configures a Server.
type Config struct {
	Addr           string
	AllowedOrigins []string // CORS; empty allows any origin

	Poller   Poller
	Cache    SeriesSource
	Settings *settings.Service
	Engine   *indicator.Engine

	Health  http.Handler // served at /api/health when set
	Metrics http.Handler // served at /metrics when set
}

// Server is the HTTP and WebSocket front of the chart.
type Server struct {
	cfg    Config
	log    *zap.Logger
	hub    *Hub
	router *mux.Router
	srv    *http.Server

	upgrader websocket.Upgrader
	// subscribeTimeout bounds the refresh started by a WS subscription.
	subscribeTimeout time.Duration
}

// New creates a server and registers its routes.
func New(cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Engine == nil {
		cfg.Engine = indicator.NewEngine(log)
	}
	s := &Server{
		cfg: cfg,
		log: log.Named("gateway"),
		hub: NewHub(log),
		upgrader: websocket.Upgrader{
			CheckOrigin:       func(r *http.Request) bool { return true },
			EnableCompression: true,
		},
		subscribeTimeout: 30 * time.Second,
	}
	s.hub.OnSubscribe = s.subscribed
	s.router = s.routes()
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the router wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-Request-ID"}),
	)(s.router)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)
	r.Use(handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(s.log.Named("recovery"))),
	))

	api := r.PathPrefix("/api").Subrouter()
	if s.cfg.Health != nil {
		api.Handle("/health", s.cfg.Health).Methods("GET")
	}
	api.HandleFunc("/intervals", s.handleIntervals).Methods("GET")
	api.HandleFunc("/active", s.handleGetActive).Methods("GET")
	api.HandleFunc("/active", s.handleSetActive).Methods("POST")
	api.HandleFunc("/series/{stock}/{interval}", s.handleSeries).Methods("GET")
	api.HandleFunc("/series/{stock}/{interval}/more", s.handleLoadMore).Methods("POST")
	api.HandleFunc("/indicators/{stock}/{interval}", s.handleIndicators).Methods("GET")
	api.HandleFunc("/indicators/{stock}/{interval}/latest", s.handleLatest).Methods("GET")
	api.HandleFunc("/watchlist", s.handleWatchlist).Methods("GET")
	api.HandleFunc("/missed", s.handleMissed).Methods("GET")

	st := api.PathPrefix("/settings").Subrouter()
	st.HandleFunc("", s.handleGetSettings).Methods("GET")
	st.HandleFunc("", s.handleReplaceSettings).Methods("PUT")
	st.HandleFunc("/indicators", s.handleCreateIndicator).Methods("POST")
	st.HandleFunc("/indicators/{index:[0-9]+}", s.handleSetIndicator).Methods("PUT")
	st.HandleFunc("/indicators/{index:[0-9]+}", s.handleRemoveIndicator).Methods("DELETE")
	st.HandleFunc("/advanced", s.handleCreateAdvanced).Methods("POST")
	st.HandleFunc("/advanced", s.handleSetAdvanced).Methods("PUT")
	st.HandleFunc("/advanced", s.handleUpdateAdvanced).Methods("PATCH")
	st.HandleFunc("/advanced", s.handleRemoveAdvanced).Methods("DELETE")
	st.HandleFunc("/favourites/{stock}", s.handleToggleFavourite).Methods("POST")
	st.HandleFunc("/order/{field}", s.handleSelectOrder).Methods("POST")
	st.HandleFunc("/theme/{theme}", s.handleSetTheme).Methods("PUT")

	r.HandleFunc("/ws", s.handleWS).Methods("GET")
	if s.cfg.Metrics != nil {
		r.Handle("/metrics", s.cfg.Metrics).Methods("GET")
	}
	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			// Hijacked connections report no status.
			next.ServeHTTP(w, r)
			return
		}
		m := httpsnoop.CaptureMetrics(next, w, r)
		lvl := zap.DebugLevel
		if m.Code >= http.StatusInternalServerError {
			lvl = zap.WarnLevel
		}
		s.log.Check(lvl, "http request").Write(
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", m.Code),
			zap.Duration("duration", m.Duration),
			zap.Int64("bytes", m.Written),
			zap.String("remote", r.RemoteAddr),
		)
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	s.hub.Register(conn)
}

// subscribed makes a WS client's pair the active one and pushes its view.
func (s *Server) subscribed(c *Client, k model.Key) {
	ctx, cancel := context.WithTimeout(context.Background(), s.subscribeTimeout)
	defer cancel()
	if err := s.cfg.Poller.SetActive(ctx, k.Stock, k.Interval); err != nil {
		s.log.Warn("subscribe refresh failed", zap.String("client", c.ID()), zap.Stringer("key", k), zap.Error(err))
	}
	s.PublishSeries(k)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("gateway listening", zap.String("addr", s.cfg.Addr))
		errCh <- s.srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Close()
		return s.srv.Shutdown(shutdownCtx)
	}
}

// watchlistFor renders resp with the current favourites and order.
func (s *Server) watchlistFor(resp model.SnapshotResponse) watchlist.List {
	st := s.cfg.Settings.Get()
	return watchlist.Build(resp, st.Favourites, st.ListOrder)
}
