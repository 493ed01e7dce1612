package socket

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/corey/thoughts/internal/ports"
	"go.uber.org/zap"
)

// AppQueries is the daemon surface the server dispatches to.
// Thread safety is the implementor's responsibility.
type AppQueries interface {
	Ingest(ctx context.Context, msg ports.Message) (IngestResult, error)
	Add(author ports.AuthorID, phrase string) (int, error)
	RemoveOccurrence(ctx context.Context, author ports.AuthorID, phrase string) (CountResult, error)
	RenamePhrase(ctx context.Context, author ports.AuthorID, oldPhrase, newPhrase string) (CountResult, error)
	Snapshot(author ports.AuthorID) (SnapshotResult, error)
	Render(ctx context.Context, author ports.AuthorID) (ports.Artifact, error)
	RenderAll(ctx context.Context) (ports.Artifact, error)
	Rescan(ctx context.Context, author ports.AuthorID) (RescanResult, error)
	Status() StatusResult
	Wipe() error
}

// Server is the daemon that listens on a Unix socket and serves ledger requests.
type Server struct {
	queries  AppQueries
	log      *zap.Logger
	listener net.Listener
	sockPath string
	started  time.Time

	ctx    context.Context // cancelled by Stop; ends in-flight rescans
	cancel context.CancelFunc

	done         chan struct{}
	shutdownCh   chan struct{} // closed when a remote shutdown request is received
	shutdownOnce sync.Once
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

// NewServer creates a daemon server dispatching to queries.
func NewServer(queries AppQueries, sockPath string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		queries:    queries,
		log:        log,
		sockPath:   sockPath,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		shutdownCh: make(chan struct{}),
	}
}

// Start begins listening on the Unix socket. It handles stale sockets by
// attempting a connection first. If the connection fails, the stale socket
// is removed before binding.
func (s *Server) Start() error {
	// Handle stale socket
	if _, err := os.Stat(s.sockPath); err == nil {
		conn, err := net.DialTimeout("unix", s.sockPath, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return fmt.Errorf("daemon already running at %s", s.sockPath)
		}
		// Stale socket, remove it
		os.Remove(s.sockPath)
	}

	ln, err := net.Listen("unix", s.sockPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listener = ln
	s.started = time.Now()

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop gracefully shuts down the server, closing the listener and removing the socket file.
// Idempotent, safe to call multiple times (e.g., after remote shutdown + signal).
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
		s.cancel()
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		os.Remove(s.sockPath)
	})
	return nil
}

// ShutdownCh returns a channel that is closed when a remote shutdown request
// is received. The daemon's main goroutine should select on this alongside
// OS signals so the process actually exits after a remote stop.
func (s *Server) ShutdownCh() <-chan struct{} {
	return s.shutdownCh
}

// Addr returns the socket path the server is listening on.
func (s *Server) Addr() string {
	return s.sockPath
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	// Idle clients must not hold up Stop.
	stop := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB max message

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(conn, Response{Error: "invalid request JSON"})
			continue
		}

		start := time.Now()
		resp := s.handleRequest(s.ctx, req)
		s.log.Debug("request",
			zap.String("id", req.ID),
			zap.String("method", req.Method),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", resp.Error))
		s.writeResponse(conn, resp)

		if req.Method == MethodShutdown {
			s.shutdownOnce.Do(func() { close(s.shutdownCh) })
			return
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodHealth:
		return s.handleHealth(req)
	case MethodShutdown:
		return Response{ID: req.ID, Result: struct{}{}}
	}
	if s.queries == nil {
		return Response{ID: req.ID, Error: "ledger not available"}
	}

	switch req.Method {
	case MethodIngest:
		p, err := decode[IngestParams](req.Params)
		if err != nil {
			return invalidParams(req)
		}
		res, err := s.queries.Ingest(ctx, p.Message)
		return reply(req, res, err)
	case MethodAdd:
		p, err := decode[PhraseParams](req.Params)
		if err != nil {
			return invalidParams(req)
		}
		n, err := s.queries.Add(p.Author, p.Phrase)
		return reply(req, CountResult{Count: n}, err)
	case MethodRemove:
		p, err := decode[PhraseParams](req.Params)
		if err != nil {
			return invalidParams(req)
		}
		res, err := s.queries.RemoveOccurrence(ctx, p.Author, p.Phrase)
		return reply(req, res, err)
	case MethodRename:
		p, err := decode[RenameParams](req.Params)
		if err != nil {
			return invalidParams(req)
		}
		res, err := s.queries.RenamePhrase(ctx, p.Author, p.Old, p.New)
		return reply(req, res, err)
	case MethodSnapshot:
		p, err := decode[AuthorParams](req.Params)
		if err != nil {
			return invalidParams(req)
		}
		res, err := s.queries.Snapshot(p.Author)
		return reply(req, res, err)
	case MethodRender:
		p, err := decode[AuthorParams](req.Params)
		if err != nil {
			return invalidParams(req)
		}
		res, err := s.queries.Render(ctx, p.Author)
		return reply(req, res, err)
	case MethodRenderAll:
		res, err := s.queries.RenderAll(ctx)
		return reply(req, res, err)
	case MethodRescan:
		p, err := decode[AuthorParams](req.Params)
		if err != nil {
			return invalidParams(req)
		}
		res, err := s.queries.Rescan(ctx, p.Author)
		return reply(req, res, err)
	case MethodStatus:
		return Response{ID: req.ID, Result: s.queries.Status()}
	case MethodWipe:
		return reply(req, struct{}{}, s.queries.Wipe())
	default:
		return Response{ID: req.ID, Error: fmt.Sprintf("unknown method: %s", req.Method)}
	}
}

func (s *Server) handleHealth(req Request) Response {
	authors := 0
	if s.queries != nil {
		authors = len(s.queries.Status().Authors)
	}
	return Response{
		ID: req.ID,
		Result: HealthResult{
			Status:  "ok",
			Authors: authors,
			Uptime:  time.Since(s.started).Round(time.Second).String(),
		},
	}
}

func reply[T any](req Request, result T, err error) Response {
	if err != nil {
		return Response{ID: req.ID, Error: err.Error(), Code: codeFor(err)}
	}
	return Response{ID: req.ID, Result: result}
}

func invalidParams(req Request) Response {
	return Response{ID: req.ID, Error: fmt.Sprintf("invalid %s params", req.Method)}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Warn("marshal response", zap.String("id", resp.ID), zap.Error(err))
		return
	}
	data = append(data, '\n')
	conn.Write(data)
}
