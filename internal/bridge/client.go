package bridge

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/seantiz/tally/internal/engine"
	"github.com/seantiz/tally/internal/session"
	"github.com/seantiz/tally/internal/wire"
)

// RemoteError is an error reported by the bridge server. It unwraps to the
// sentinel for its kind, so errors.Is works across the connection.
type RemoteError struct {
	Kind    string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	return engine.KindError(e.Kind)
}

// Client is a bridge connection. Requests are sent one at a time; a Client
// is safe for concurrent use.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	nextID uint64
}

// Dial connects to a bridge server at addr (unix://PATH, tcp://HOST:PORT or
// vsock://CID:PORT).
func Dial(ctx context.Context, addr string) (*Client, error) {
	conn, err := dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("dial bridge: %w", err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn}
}

// Close ends the connection. The server closes every session it created.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Create opens a session owned by this connection.
func (c *Client) Create(ctx context.Context) (session.Handle, error) {
	resp, err := c.roundTrip(ctx, wire.Request{Op: wire.OpCreate})
	if err != nil {
		return 0, err
	}
	return session.Handle(resp.Handle), nil
}

// Load parses data into the session's journal.
func (c *Client) Load(ctx context.Context, h session.Handle, source string, data []byte) error {
	_, err := c.roundTrip(ctx, wire.Request{Op: wire.OpLoad, Handle: uint64(h), Source: source, Data: data})
	return err
}

// Execute runs a command line against the session.
func (c *Client) Execute(ctx context.Context, h session.Handle, line string) (string, error) {
	resp, err := c.roundTrip(ctx, wire.Request{Op: wire.OpExecute, Handle: uint64(h), Command: []byte(line)})
	if err != nil {
		return "", err
	}
	return string(resp.Output), nil
}

// Run runs a command line through the server's global entry point.
func (c *Client) Run(ctx context.Context, line string) (string, error) {
	resp, err := c.roundTrip(ctx, wire.Request{Op: wire.OpRun, Command: []byte(line)})
	if err != nil {
		return "", err
	}
	return string(resp.Output), nil
}

// CloseSession closes the session. Closing twice is not an error.
func (c *Client) CloseSession(ctx context.Context, h session.Handle) error {
	_, err := c.roundTrip(ctx, wire.Request{Op: wire.OpClose, Handle: uint64(h)})
	return err
}

func (c *Client) roundTrip(ctx context.Context, req wire.Request) (*wire.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
		defer c.conn.SetDeadline(time.Time{})
	}

	c.nextID++
	req.ID = c.nextID
	if err := wire.WriteMessage(c.conn, &req); err != nil {
		return nil, fmt.Errorf("send %s: %w", req.Op, err)
	}

	var resp wire.Response
	if err := wire.ReadMessage(c.conn, &resp); err != nil {
		return nil, fmt.Errorf("receive %s: %w", req.Op, err)
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("receive %s: response id %d, want %d", req.Op, resp.ID, req.ID)
	}
	if resp.Kind != "" {
		return nil, &RemoteError{Kind: resp.Kind, Message: resp.Error}
	}
	return &resp, nil
}
