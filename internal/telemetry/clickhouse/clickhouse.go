// Package clickhouse wraps the native ClickHouse driver connection used
// by the trace sink (internal/telemetry/trace): serializing a rewrite
// trace is the sink's job, not an engine's, so the connection lives
// here as its own external collaborator.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Options configures the connection to the ClickHouse cluster that
// stores rewrite trace records.
type Options struct {
	Addresses   []string
	Database    string
	Username    string
	Password    string
	DialTimeout time.Duration
}

// Client is a thin wrapper over a driver.Conn, narrowing the surface to
// the Exec/Query/QueryRow/Ping calls the trace sink needs.
type Client struct {
	conn driver.Conn
}

// Open establishes a connection to ClickHouse.
func Open(opts Options) (*Client, error) {
	dialTimeout := opts.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 5 * time.Second
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: opts.Addresses,
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse: open: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Exec runs a statement that returns no rows (INSERT, DDL).
func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	if err := c.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("clickhouse: exec: %w", err)
	}
	return nil
}

// Query runs a statement that returns rows.
func (c *Client) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: query: %w", err)
	}
	return rows, nil
}

// QueryRow runs a statement expected to return at most one row.
func (c *Client) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	return c.conn.QueryRow(ctx, query, args...)
}

// Ping verifies the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.conn.Ping(ctx); err != nil {
		return fmt.Errorf("clickhouse: ping: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
