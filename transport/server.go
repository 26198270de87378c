package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/segfront/logging"
	"go.viam.com/segfront/rimage"
	"go.viam.com/segfront/ros"
)

const writeTimeout = 5 * time.Second

// Server exposes the outbound streams over HTTP.
//
//	GET /results             websocket, one JSON result message per frame
//	GET /results/latest      the most recent result as JSON
//	GET /visualization.ppm   the most recent visualization frame
//	GET /stats               whatever the stats function returns, as JSON
type Server struct {
	logger   logging.Logger
	topics   *Topics
	stats    func() interface{}
	router   *mux.Router
	upgrader websocket.Upgrader

	// mu orders activeWGs.Add against Close so that no worker is added once Wait may run.
	mu        sync.Mutex
	closeCtx  context.Context
	cancel    func()
	activeWGs sync.WaitGroup
}

// ErrServerClosed is returned by ListenAndServe after Close.
var ErrServerClosed = errors.New("results server closed")

// NewServer returns a server reading from topics. stats may be nil.
func NewServer(logger logging.Logger, topics *Topics, stats func() interface{}) *Server {
	closeCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		logger: logger,
		topics: topics,
		stats:  stats,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1 << 16,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		closeCtx: closeCtx,
		cancel:   cancel,
	}
	s.router.HandleFunc("/results", s.streamResults).Methods(http.MethodGet)
	s.router.HandleFunc("/results/latest", s.latestResult).Methods(http.MethodGet)
	s.router.HandleFunc("/visualization.ppm", s.latestVisualization).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.serveStats).Methods(http.MethodGet)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on address until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	httpServer := &http.Server{
		Addr:              address,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if !s.addWorker() {
		return ErrServerClosed
	}
	done := make(chan struct{})
	defer close(done)
	goutils.PanicCapturingGo(func() {
		defer s.activeWGs.Done()
		select {
		case <-ctx.Done():
		case <-s.closeCtx.Done():
		case <-done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnw("error shutting down http server", "error", err)
		}
	})
	s.logger.Infow("serving results", "address", address)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops ListenAndServe and every open websocket.
func (s *Server) Close() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.activeWGs.Wait()
}

// addWorker registers a worker with activeWGs unless the server is closed.
func (s *Server) addWorker() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeCtx.Err() != nil {
		return false
	}
	s.activeWGs.Add(1)
	return true
}

func (s *Server) streamResults(w http.ResponseWriter, r *http.Request) {
	if !s.addWorker() {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	defer s.activeWGs.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugw("websocket upgrade failed", "error", err)
		return
	}
	defer goutils.UncheckedErrorFunc(conn.Close)

	sub := s.topics.Results.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(s.closeCtx)
	defer cancel()
	s.activeWGs.Add(1)
	goutils.PanicCapturingGo(func() {
		defer s.activeWGs.Done()
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	logger := s.logger.Sublogger("ws")
	logger.Debugw("client connected", "remote", r.RemoteAddr)
	Forward(ctx, sub, func(res *ros.Result) {
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			cancel()
			return
		}
		if err := conn.WriteJSON(res); err != nil {
			logger.Debugw("client write failed", "remote", r.RemoteAddr, "error", err)
			cancel()
		}
	})
	logger.Debugw("client disconnected", "remote", r.RemoteAddr)
}

func (s *Server) latestResult(w http.ResponseWriter, r *http.Request) {
	res, ok := s.topics.Results.Latest()
	if !ok {
		http.Error(w, "no result published yet", http.StatusNotFound)
		return
	}
	s.writeJSON(w, res)
}

func (s *Server) latestVisualization(w http.ResponseWriter, r *http.Request) {
	msg, ok := s.topics.Visualization.Latest()
	if !ok {
		http.Error(w, "no visualization published yet", http.StatusNotFound)
		return
	}
	frame, err := rimage.DecodeImage(msg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	img, err := rimage.ToImage(frame)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/x-portable-pixmap")
	if err := ppm.Encode(w, img); err != nil {
		s.logger.Debugw("error writing visualization", "error", err)
	}
}

func (s *Server) serveStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		http.Error(w, "no stats available", http.StatusNotFound)
		return
	}
	s.writeJSON(w, s.stats())
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debugw("error writing response", "error", err)
	}
}
