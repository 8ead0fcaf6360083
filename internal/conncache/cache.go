// Package conncache holds one lazily dialed connection per process and shares
// a single in-flight dial between concurrent callers.
package conncache

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/starford/permitflow/internal/apperr"
)

// State is the lifecycle position of a Cache.
type State int

const (
	Unconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unconnected"
	}
}

// DialFunc opens a connection from a connection string.
type DialFunc[T any] func(ctx context.Context, dsn string) (T, error)

// CloseFunc releases a connection previously returned by a DialFunc.
type CloseFunc[T any] func(ctx context.Context, conn T) error

// Observer is notified of every finished dial attempt.
type Observer interface {
	ObserveDial(name string, err error)
}

// Cache guards a single connection of type T.
type Cache[T any] struct {
	name     string
	dsn      string
	dial     DialFunc[T]
	close    CloseFunc[T]
	logger   *slog.Logger
	observer Observer

	group singleflight.Group

	mu         sync.Mutex
	conn       T
	connected  bool
	connecting bool
}

// Option configures a Cache.
type Option[T any] func(*Cache[T])

// WithClose sets the function used by Close to release the cached connection.
func WithClose[T any](fn CloseFunc[T]) Option[T] {
	return func(c *Cache[T]) { c.close = fn }
}

// WithLogger sets the logger used for dial outcomes.
func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(c *Cache[T]) { c.logger = l }
}

// WithObserver sets an observer for dial outcomes.
func WithObserver[T any](o Observer) Option[T] {
	return func(c *Cache[T]) { c.observer = o }
}

// New creates an Unconnected cache. name identifies the backend in logs and metrics.
func New[T any](name, dsn string, dial DialFunc[T], opts ...Option[T]) *Cache[T] {
	c := &Cache[T]{
		name:   name,
		dsn:    dsn,
		dial:   dial,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the current lifecycle state.
func (c *Cache[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.connected:
		return Connected
	case c.connecting:
		return Connecting
	default:
		return Unconnected
	}
}

// Acquire returns the cached connection, dialing it on first use.
//
// Callers arriving while a dial is in flight wait for that dial instead of
// starting another. A failed dial leaves the cache Unconnected so a later
// call can try again. The dial is not cancelled when the initiating caller's
// context ends; only that caller stops waiting.
func (c *Cache[T]) Acquire(ctx context.Context) (T, error) {
	var zero T

	c.mu.Lock()
	if c.connected {
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	}
	c.mu.Unlock()

	if c.dsn == "" {
		return zero, apperr.Configuration("conncache: "+c.name, "connection string is not set")
	}

	dialCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(c.name, func() (any, error) {
		return c.connect(dialCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *Cache[T]) connect(ctx context.Context) (T, error) {
	c.mu.Lock()
	if c.connected {
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	}
	c.connecting = true
	c.mu.Unlock()

	conn, err := c.dial(ctx, c.dsn)

	c.mu.Lock()
	c.connecting = false
	if err == nil {
		c.conn = conn
		c.connected = true
	}
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.ObserveDial(c.name, err)
	}
	if err != nil {
		c.logger.Error("conncache: dial failed", slog.String("backend", c.name), slog.String("error", err.Error()))
		var zero T
		return zero, apperr.Connection("conncache: "+c.name, err)
	}
	c.logger.Info("conncache: connection established", slog.String("backend", c.name))
	return conn, nil
}

// Close releases the cached connection, if any, and returns to Unconnected.
func (c *Cache[T]) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	var zero T
	c.conn = zero
	c.connected = false
	c.mu.Unlock()

	if c.close == nil {
		return nil
	}
	return c.close(ctx, conn)
}
