package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/edusat-bridge/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Client batches telemetry points to one InfluxDB v2 bucket.
//
// Writes never block the caller: points are queued by the client library and
// flushed by size or interval. Failed batches are reported through the
// SetOnError callback and counted in Stats.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig

	connected atomic.Bool
	queued    atomic.Uint64
	failed    atomic.Uint64

	mu      sync.RWMutex
	onError func(err error)
}

// Stats are the client's write counters.
type Stats struct {
	Queued uint64 `json:"queued"`
	Failed uint64 `json:"failed"`
}

// Connect creates the client and pings the server. ctx bounds the ping.
//
// It returns ErrDisabled when influxdb.enabled is false and
// ErrConnectionFailed when the server is unreachable or unhealthy.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	// #nosec G115 -- both values are positive here
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batchSize)).
		SetFlushInterval(uint(flushInterval) * uint(time.Second/time.Millisecond))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: %s: server not healthy", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:      cfg,
	}
	c.connected.Store(true)

	go c.handleWriteErrors(c.writeAPI.Errors())

	return c, nil
}

func (c *Client) handleWriteErrors(errs <-chan error) {
	for err := range errs {
		c.failed.Add(1)

		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()
		if callback != nil {
			callback(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// Close flushes queued points and releases the client. Safe to call more
// than once.
func (c *Client) Close() error {
	if c.client == nil || !c.connected.CompareAndSwap(true, false) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// IsConnected reports whether the client is open. It does not ping.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// SetOnError sets the callback for failed batch writes.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// Flush blocks until every queued point has been sent. No-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Stats returns the write counters.
func (c *Client) Stats() Stats {
	return Stats{
		Queued: c.queued.Load(),
		Failed: c.failed.Load(),
	}
}
