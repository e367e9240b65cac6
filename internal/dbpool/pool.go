// Package dbpool keeps a fixed set of warm database connections and hands out
// extra ones on demand instead of making callers wait.
//
// Acquire never blocks on an empty pool: when every pooled connection is
// checked out it dials an overflow connection. Release puts a connection back
// only while the pool has room; anything beyond capacity is closed. Every
// connection handed out has just answered a ping.
package dbpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
)

const DefaultCapacity = 10

var ErrClosed = errors.New("dbpool: pool is closed")

// Conn is the subset of *pgx.Conn the store needs.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type Dialer func(ctx context.Context) (Conn, error)

type Pool struct {
	dial     Dialer
	capacity int
	metrics  *metrics

	mu     sync.Mutex
	idle   chan Conn
	closed bool
}

type metrics struct {
	acquired  prometheus.Counter
	overflow  prometheus.Counter
	reconnect prometheus.Counter
	discarded prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		acquired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bonfire", Subsystem: "dbpool", Name: "acquired_total",
		}),
		overflow: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bonfire", Subsystem: "dbpool", Name: "overflow_dials_total",
		}),
		reconnect: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bonfire", Subsystem: "dbpool", Name: "reconnects_total",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bonfire", Subsystem: "dbpool", Name: "discarded_on_release_total",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.acquired, m.overflow, m.reconnect, m.discarded)
	}
	return m
}

// New dials capacity connections up front. A failure here is a startup
// failure, so every connection opened so far is closed again.
func New(ctx context.Context, dial Dialer, capacity int, reg prometheus.Registerer) (*Pool, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	p := &Pool{
		dial:     dial,
		capacity: capacity,
		metrics:  newMetrics(reg),
		idle:     make(chan Conn, capacity),
	}
	for i := 0; i < capacity; i++ {
		conn, err := dial(ctx)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("prefill connection %d/%d: %w", i+1, capacity, err)
		}
		p.idle <- conn
	}
	return p, nil
}

func (p *Pool) Capacity() int {
	return p.capacity
}

// Idle reports how many connections are currently parked in the pool.
func (p *Pool) Idle() int {
	return len(p.idle)
}

func (p *Pool) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.checkout(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		slog.Warn("pooled connection failed liveness check; reconnecting", "error", err)
		_ = conn.Close(ctx)
		p.metrics.reconnect.Inc()
		conn, err = p.dial(ctx)
		if err != nil {
			return nil, fmt.Errorf("reconnect: %w", err)
		}
	}
	p.metrics.acquired.Inc()
	return conn, nil
}

func (p *Pool) checkout(ctx context.Context) (Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	select {
	case conn := <-p.idle:
		p.mu.Unlock()
		return conn, nil
	default:
	}
	p.mu.Unlock()

	p.metrics.overflow.Inc()
	conn, err := p.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial overflow connection: %w", err)
	}
	return conn, nil
}

func (p *Pool) Release(conn Conn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	if !p.closed {
		select {
		case p.idle <- conn:
			p.mu.Unlock()
			return
		default:
		}
	}
	p.mu.Unlock()

	p.metrics.discarded.Inc()
	if err := conn.Close(context.Background()); err != nil {
		slog.Debug("failed to close released connection", "error", err)
	}
}

func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case conn := <-p.idle:
			_ = conn.Close(context.Background())
		default:
			return
		}
	}
}
