package plugin

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// Channel is one open connection to the plugin host.
type Channel interface {
	RPC(ctx context.Context, payload string) (string, error)
	Close() error
}

// ChannelFactory opens channels to the plugin host.
type ChannelFactory interface {
	Open(ctx context.Context) (Channel, error)
}

// Dialer opens a new stream connection for every channel.
type Dialer struct {
	// Network is "tcp" or "unix".
	Network string
	Address string
	// Timeout bounds the dial. Zero means no timeout beyond ctx.
	Timeout time.Duration
}

// Open implements ChannelFactory.
func (d *Dialer) Open(ctx context.Context) (Channel, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	network := d.Network
	if network == "" {
		network = "tcp"
	}
	conn, err := nd.DialContext(ctx, network, d.Address)
	if err != nil {
		return nil, fmt.Errorf("plugin: dial %s %s: %w", network, d.Address, err)
	}
	return &connChannel{conn: conn}, nil
}

type connChannel struct {
	mu   sync.Mutex
	conn net.Conn
}

// RPC sends one payload and waits for the reply. Cancelling ctx aborts the
// call and leaves the channel unusable.
func (c *connChannel) RPC(ctx context.Context, payload string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
		defer c.conn.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := writeFrame(c.conn, request{Op: OpRPC, Payload: payload}); err != nil {
		return "", c.fail(ctx, "send", err)
	}
	var rep reply
	if err := readFrame(c.conn, &rep); err != nil {
		return "", c.fail(ctx, "receive", err)
	}
	if rep.Error != "" {
		return "", &RemoteError{Message: rep.Error}
	}
	return rep.Payload, nil
}

func (c *connChannel) fail(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	return fmt.Errorf("plugin: %s: %w", op, err)
}

func (c *connChannel) Close() error {
	return c.conn.Close()
}

var _ ChannelFactory = (*Dialer)(nil)
