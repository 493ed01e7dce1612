package web

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/corey/thoughts/internal/adapters/socket"
	"github.com/corey/thoughts/internal/domain/ledger"
	"github.com/corey/thoughts/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server serves the dashboard, a read-only JSON API and Prometheus metrics.
type Server struct {
	queries  socket.AppQueries
	gatherer prometheus.Gatherer
	log      *zap.Logger
	listener net.Listener
	httpSrv  *http.Server
	port     int
	started  time.Time
	stopOnce sync.Once
	wg       sync.WaitGroup

	portFilePath string // .thoughts/run/http.port
}

// NewServer creates an HTTP server for the dashboard.
// The portFilePath is where the bound port is written for discovery.
// A nil gatherer serves the default Prometheus registry.
func NewServer(queries socket.AppQueries, gatherer prometheus.Gatherer, portFilePath string, log *zap.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		queries:      queries,
		gatherer:     gatherer,
		log:          log,
		portFilePath: portFilePath,
	}
}

// DefaultPort computes a project-specific port: 19000 + (hash(abs_path) % 1000).
func DefaultPort(root string) int {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	h := sha256.Sum256([]byte(abs))
	// Use first 4 bytes as uint32
	n := uint32(h[0])<<24 | uint32(h[1])<<16 | uint32(h[2])<<8 | uint32(h[3])
	return 19000 + int(n%1000)
}

// Handler returns the routing mux. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /", http.FileServerFS(staticFS))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ledger", s.handleLedger)
	mux.HandleFunc("GET /api/authors/{id}", s.handleAuthor)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start begins listening on the preferred port (0 picks a free one).
// Writes the bound port to the port file.
func (s *Server) Start(preferredPort int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", preferredPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.started = time.Now()
	s.httpSrv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	// Write port file for discovery
	if s.portFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(s.portFilePath), 0o755); err == nil {
			os.WriteFile(s.portFilePath, []byte(fmt.Sprintf("%d", s.port)), 0o644)
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("http server", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server. Idempotent.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.httpSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.httpSrv.Shutdown(ctx)
		}
		s.wg.Wait()
		if s.portFilePath != "" {
			os.Remove(s.portFilePath)
		}
	})
}

// Port returns the bound port number.
func (s *Server) Port() int {
	return s.port
}

// URL returns the dashboard URL.
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d", s.port)
}

// AuthorView is one author's entries as served by the API.
type AuthorView struct {
	Author  ports.AuthorID `json:"author"`
	Name    string         `json:"name"`
	Total   int            `json:"total"`
	Entries []ports.Entry  `json:"entries"`
}

// LedgerView is the /api/ledger response.
type LedgerView struct {
	State   string       `json:"state"`
	Authors []AuthorView `json:"authors"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	authors := 0
	if s.queries != nil {
		authors = len(s.queries.Status().Authors)
	}
	writeJSON(w, http.StatusOK, socket.HealthResult{
		Status:  "ok",
		Authors: authors,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) authorView(id ports.AuthorID) (AuthorView, error) {
	snap, err := s.queries.Snapshot(id)
	if err != nil {
		return AuthorView{}, err
	}
	entries := ledger.Sorted(snap.Entries)
	if entries == nil {
		entries = []ports.Entry{}
	}
	return AuthorView{
		Author:  id,
		Name:    snap.Name,
		Total:   snap.Entries.Total(),
		Entries: entries,
	}, nil
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if s.queries == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger not available")
		return
	}
	st := s.queries.Status()
	view := LedgerView{State: st.State, Authors: []AuthorView{}}
	for _, a := range st.Authors {
		av, err := s.authorView(a.Author)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		view.Authors = append(view.Authors, av)
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAuthor(w http.ResponseWriter, r *http.Request) {
	if s.queries == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger not available")
		return
	}
	id, err := ports.NormalizeAuthorID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	av, err := s.authorView(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(av.Entries) == 0 {
		writeError(w, http.StatusNotFound, ports.ErrNoData.Error())
		return
	}
	writeJSON(w, http.StatusOK, av)
}
