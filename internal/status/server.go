// Package status serves sync state over HTTP and streams drain results and
// connectivity changes to websocket clients.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/caretrack/internal/netmon"
	"github.com/mesh-intelligence/caretrack/internal/syncqueue"
	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// DefaultAddr is used when Config.Addr is empty.
const DefaultAddr = "127.0.0.1:8787"

const writeTimeout = 5 * time.Second

// MessageType names a websocket message.
type MessageType string

// Websocket message types.
const (
	MessageStatus       MessageType = "status"
	MessageSyncComplete MessageType = "sync_complete"
	MessageConnectivity MessageType = "connectivity"
)

// Message is one websocket frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Snapshot is the body of GET /status.
type Snapshot struct {
	Online       bool       `json:"online"`
	PendingCount int        `json:"pending_count"`
	Draining     bool       `json:"draining"`
	LastSync     *time.Time `json:"last_sync"`
}

// Queue is the sync queue surface the server needs.
type Queue interface {
	Drain(ctx context.Context) (types.SyncResult, error)
	Draining() bool
	PendingCount(ctx context.Context) (int, error)
	LastSync(ctx context.Context) (time.Time, bool, error)
	Subscribe(fn syncqueue.Listener) func()
}

// Config holds server parameters.
type Config struct {
	Addr   string
	Logger logrus.FieldLogger
}

// Server is the status HTTP and websocket server.
type Server struct {
	addr    string
	queue   Queue
	monitor *netmon.Monitor
	log     logrus.FieldLogger
	router  chi.Router

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]struct{}

	broadcast chan Message
}

// New creates a Server for queue and monitor.
func New(queue Queue, monitor *netmon.Monitor, cfg Config) *Server {
	s := &Server{
		addr:      cfg.Addr,
		queue:     queue,
		monitor:   monitor,
		log:       cfg.Logger,
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan Message, 64),
	}
	if s.addr == "" {
		s.addr = DefaultAddr
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}

	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/drain", s.handleDrain)
	r.Get("/ws", s.handleWebSocket)
	s.router = r
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe listens on the configured address and serves until ctx is
// done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down and
// closes every websocket client.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe := s.queue.Subscribe(func(r types.SyncResult) {
		s.publish(ctx, MessageSyncComplete, r)
	})
	defer unsubscribe()
	transitions, stopWatching := s.monitor.Subscribe()
	defer stopWatching()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.broadcastLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.watchConnectivity(ctx, transitions)
	}()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", ln.Addr().String()).Info("status server listening")
		errCh <- srv.Serve(ln)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	cancel()

	s.closeClients()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Warn("status server shutdown")
	}
	wg.Wait()

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}

func (s *Server) watchConnectivity(ctx context.Context, transitions <-chan netmon.Transition) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-transitions:
			if !ok {
				return
			}
			s.publish(ctx, MessageConnectivity, t)
		}
	}
}

func (s *Server) publish(ctx context.Context, typ MessageType, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.WithError(err).Warn("encoding websocket message")
		return
	}
	msg := Message{Type: typ, Timestamp: time.Now().UTC(), Data: data}
	select {
	case s.broadcast <- msg:
	case <-ctx.Done():
	default:
		s.log.WithField("type", typ).Warn("broadcast channel full, dropping message")
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for c := range s.clients {
				clients = append(clients, c)
			}
			s.clientsMu.RUnlock()

			for _, c := range clients {
				if err := s.write(ctx, c, data); err != nil {
					s.log.WithError(err).Debug("websocket write failed")
					s.removeClient(c)
				}
			}
		}
	}
}

func (s *Server) write(ctx context.Context, c *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, data)
}

func (s *Server) snapshot(ctx context.Context) (Snapshot, error) {
	n, err := s.queue.PendingCount(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Online: s.monitor.IsOnline(), PendingCount: n, Draining: s.queue.Draining()}
	last, ok, err := s.queue.LastSync(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if ok {
		snap.LastSync = &last
	}
	return snap, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	n := len(s.clients)
	s.clientsMu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": n})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	result, err := s.queue.Drain(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if result.Skipped() {
		writeJSON(w, http.StatusConflict, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()
	s.log.WithField("clients", n).Debug("websocket client connected")

	// The first frame tells the client it is registered for broadcasts.
	snap, err := s.snapshot(r.Context())
	if err == nil {
		data, _ := json.Marshal(snap)
		welcome, _ := json.Marshal(Message{Type: MessageStatus, Timestamp: time.Now().UTC(), Data: data})
		if err := s.write(r.Context(), conn, welcome); err != nil {
			s.removeClient(conn)
			return
		}
	}

	// Reading until the client goes away keeps control frames flowing.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			s.removeClient(conn)
			return
		}
	}
}

func (s *Server) removeClient(c *websocket.Conn) {
	s.clientsMu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.clientsMu.Unlock()
	if ok {
		c.Close(websocket.StatusNormalClosure, "")
	}
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	clients := s.clients
	s.clients = make(map[*websocket.Conn]struct{})
	s.clientsMu.Unlock()
	for c := range clients {
		c.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
