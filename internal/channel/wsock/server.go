package wsock

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/roach88/skirmish/internal/channel"
)

// Server exposes a channel.Channel to websocket clients.
type Server struct {
	ch       channel.Channel
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server's logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// WithCheckOrigin overrides the upgrader's origin check.
func WithCheckOrigin(fn func(*http.Request) bool) ServerOption {
	return func(s *Server) {
		s.upgrader.CheckOrigin = fn
	}
}

// NewServer creates a server backed by ch.
func NewServer(ch channel.Channel, opts ...ServerOption) *Server {
	s := &Server{
		ch: ch,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP upgrades the request and serves RPC frames until the client
// sends a subscribe frame, after which the connection streams events.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		var req Frame
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("rpc connection ended", "remote", r.RemoteAddr, "error", err)
			}
			return
		}

		if req.Op == opSubscribe {
			s.stream(ctx, cancel, conn, req)
			return
		}

		if err := conn.WriteJSON(s.handle(ctx, req)); err != nil {
			s.logger.Debug("write response failed", "remote", r.RemoteAddr, "error", err)
			return
		}
	}
}

func (s *Server) handle(ctx context.Context, req Frame) Frame {
	switch req.Op {
	case opCreate:
		if req.Session == nil {
			return errorFrame(req, fmt.Errorf("%w: create without session", channel.ErrInvalid))
		}
		if err := s.ch.Create(ctx, *req.Session); err != nil {
			return errorFrame(req, err)
		}
		return Frame{Op: opResult, ID: req.ID, SessionID: req.Session.ID}

	case opSession:
		sess, err := s.ch.Session(ctx, req.SessionID)
		if err != nil {
			return errorFrame(req, err)
		}
		return Frame{Op: opResult, ID: req.ID, SessionID: sess.ID, Session: &sess}

	case opAppend:
		if req.Event == nil {
			return errorFrame(req, fmt.Errorf("%w: append without event", channel.ErrInvalid))
		}
		seq, err := s.ch.Append(ctx, *req.Event)
		if err != nil {
			return errorFrame(req, err)
		}
		return Frame{Op: opResult, ID: req.ID, SessionID: req.Event.SessionID, Seq: seq}

	default:
		return errorFrame(req, fmt.Errorf("%w: unknown op %q", channel.ErrInvalid, req.Op))
	}
}

// stream forwards accepted events until the client goes away or the
// underlying stream ends.
func (s *Server) stream(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, req Frame) {
	st, err := s.ch.Subscribe(ctx, req.SessionID, req.From)
	if err != nil {
		_ = conn.WriteJSON(errorFrame(req, err))
		return
	}
	defer st.Close()

	if err := conn.WriteJSON(Frame{Op: opSubscribed, ID: req.ID, SessionID: req.SessionID, From: req.From}); err != nil {
		return
	}

	// The client never sends on a stream connection; a read returns only
	// when it closes.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		ev, err := st.Next(ctx)
		if err != nil {
			s.logger.Debug("stream ended", "session", req.SessionID, "error", err)
			return
		}
		if err := conn.WriteJSON(Frame{Op: opEvent, SessionID: ev.SessionID, Seq: ev.Seq, Event: &ev}); err != nil {
			return
		}
	}
}
