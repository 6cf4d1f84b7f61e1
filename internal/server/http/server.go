package httpserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rzbill/conveyor/internal/indexer"
	"github.com/rzbill/conveyor/internal/runtime"
)

// Server is the admin HTTP surface: health, metrics, and topic listing.
// It carries no data-plane endpoints; publishing and consuming go through
// in-process handles.
type Server struct {
	rt  *runtime.Runtime
	srv *http.Server
	lis net.Listener

	mu    sync.Mutex
	loops map[string]*indexer.Metrics
}

func New(rt *runtime.Runtime) *Server {
	mux := http.NewServeMux()
	s := &Server{rt: rt, srv: &http.Server{Handler: cors(mux)}, loops: map[string]*indexer.Metrics{}}
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.HandleFunc("/v1/metrics", s.handleMetrics)
	mux.HandleFunc("/v1/topics", s.handleTopics)
	return s
}

// RegisterLoop exposes a loop's counters under its configured name.
func (s *Server) RegisterLoop(name string, m *indexer.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loops[name] = m
}

// Handler returns the server's HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not_serving", "error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	topics := map[string]any{}
	for name, t := range s.rt.Topics() {
		topics[name] = t.Metrics().Snapshot()
	}
	loops := map[string]any{}
	s.mu.Lock()
	for name, m := range s.loops {
		loops[name] = m.Snapshot()
	}
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"topics": topics, "indexers": loops})
}

type topicInfo struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	out := []topicInfo{}
	for name, t := range s.rt.Topics() {
		out = append(out, topicInfo{Name: name, Healthy: t.Healthy()})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"topics": out})
}
