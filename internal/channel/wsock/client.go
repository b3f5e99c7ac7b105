package wsock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/roach88/skirmish/internal/channel"
	"github.com/roach88/skirmish/internal/model"
)

// Client implements channel.Channel against a remote Server.
//
// The RPC connection is dialed lazily and redialed after any transport
// failure. RPCs are serialized over it. Client is safe for concurrent use.
type Client struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the client's logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) ClientOption {
	return func(c *Client) {
		c.dialer = d
	}
}

// NewClient creates a client for the server at url (ws:// or wss://).
// No connection is made until the first call.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:    url,
		dialer: websocket.DefaultDialer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ channel.Channel = (*Client)(nil)

// Create registers a session header on the server.
func (c *Client) Create(ctx context.Context, s model.GameSession) error {
	header := s.Header()
	_, err := c.call(ctx, Frame{Op: opCreate, SessionID: s.ID, Session: &header})
	return err
}

// Session fetches the server's current view of a session.
func (c *Client) Session(ctx context.Context, id model.SessionID) (model.GameSession, error) {
	resp, err := c.call(ctx, Frame{Op: opSession, SessionID: id})
	if err != nil {
		return model.GameSession{}, err
	}
	if resp.Session == nil {
		return model.GameSession{}, fmt.Errorf("session %s: empty response", id)
	}
	return *resp.Session, nil
}

// Append submits an event and returns its sequence number.
func (c *Client) Append(ctx context.Context, ev model.MoveEvent) (int64, error) {
	resp, err := c.call(ctx, Frame{Op: opAppend, SessionID: ev.SessionID, Event: &ev})
	if err != nil {
		return 0, err
	}
	return resp.Seq, nil
}

// Close closes the RPC connection. Open streams are closed separately.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) call(ctx context.Context, req Frame) (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			return Frame{}, fmt.Errorf("%s: %w: %v", req.Op, channel.ErrUnavailable, err)
		}
		c.conn = conn
	}
	conn := c.conn

	// A canceled call abandons the connection; its response can no longer
	// be matched to a caller.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c.nextID++
	req.ID = c.nextID

	resp, err := roundTrip(conn, req)
	if err != nil {
		conn.Close()
		c.conn = nil
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Frame{}, ctxErr
		}
		c.logger.Debug("rpc connection lost", "url", c.url, "op", req.Op, "error", err)
		return Frame{}, fmt.Errorf("%s: %w: %v", req.Op, channel.ErrUnavailable, err)
	}

	if resp.Op == opError {
		return Frame{}, decodeError(req, resp)
	}
	return resp, nil
}

func roundTrip(conn *websocket.Conn, req Frame) (Frame, error) {
	if err := conn.WriteJSON(req); err != nil {
		return Frame{}, err
	}
	for {
		var resp Frame
		if err := conn.ReadJSON(&resp); err != nil {
			return Frame{}, err
		}
		if resp.ID == req.ID {
			return resp, nil
		}
	}
}

// Subscribe dials a dedicated connection streaming events with seq >= from.
// The stream closes when ctx ends.
func (c *Client) Subscribe(ctx context.Context, id model.SessionID, from int64) (channel.Stream, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w: %v", channel.ErrUnavailable, err)
	}

	req := Frame{Op: opSubscribe, ID: 1, SessionID: id, From: from}
	ack, err := roundTrip(conn, req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w: %v", channel.ErrUnavailable, err)
	}
	if ack.Op == opError {
		conn.Close()
		return nil, decodeError(req, ack)
	}

	s := &clientStream{
		conn:   conn,
		events: make(chan model.MoveEvent),
		failed: make(chan struct{}),
		closed: make(chan struct{}),
	}
	go s.pump()
	stop := context.AfterFunc(ctx, func() { s.Close() })
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()
	return s, nil
}

// clientStream reads frames on its own goroutine so Next can honor its
// context without a read deadline, which would poison the connection.
type clientStream struct {
	conn   *websocket.Conn
	events chan model.MoveEvent
	failed chan struct{} // closed by pump after setting err
	err    error
	closed chan struct{}
	once   sync.Once

	mu   sync.Mutex
	stop func() bool
}

func (s *clientStream) pump() {
	defer close(s.failed)
	for {
		var f Frame
		if err := s.conn.ReadJSON(&f); err != nil {
			s.err = fmt.Errorf("stream: %w: %v", channel.ErrUnavailable, err)
			return
		}
		switch f.Op {
		case opEvent:
			if f.Event == nil {
				continue
			}
			select {
			case s.events <- *f.Event:
			case <-s.closed:
				s.err = channel.ErrStreamClosed
				return
			}
		case opError:
			s.err = decodeError(Frame{Op: opSubscribe}, f)
			return
		}
	}
}

func (s *clientStream) Next(ctx context.Context) (model.MoveEvent, error) {
	select {
	case <-s.closed:
		return model.MoveEvent{}, channel.ErrStreamClosed
	default:
	}

	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.failed:
		select {
		case <-s.closed:
			return model.MoveEvent{}, channel.ErrStreamClosed
		default:
			return model.MoveEvent{}, s.err
		}
	case <-s.closed:
		return model.MoveEvent{}, channel.ErrStreamClosed
	case <-ctx.Done():
		return model.MoveEvent{}, ctx.Err()
	}
}

func (s *clientStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		err = s.conn.Close()
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
	})
	return err
}
