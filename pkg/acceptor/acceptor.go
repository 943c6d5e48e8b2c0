// Package acceptor owns the single listening TCP socket: it accepts
// connections, queues them behind a bounded channel, and drains that
// queue with a pool of goroutine workers that hand each connection to
// a dispatcher. The job-queue-plus-worker-pool shape follows
// pkg/gnssgo/rtcm/worker.go's WorkerPool, generalized from decoding
// RTCM jobs off a channel to handling accepted connections off one.
package acceptor

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Config tunes the acceptor's capacity. Zero values take the
// documented defaults.
type Config struct {
	QueueSize        int           // bounded accept queue depth
	Workers          int           // concurrent connection-handling goroutines
	GlobalMaxConns   int           // 0 means unbounded
	ShutdownDeadline time.Duration // how long Shutdown waits for workers to drain
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 5000
	}
	if c.Workers <= 0 {
		c.Workers = 5000
	}
	if c.ShutdownDeadline <= 0 {
		c.ShutdownDeadline = 10 * time.Second
	}
	return c
}

// Handler serves one accepted connection to completion and closes it.
type Handler func(net.Conn)

// ProducerCloser force-closes every live producer so a graceful
// shutdown can unblock their upload loops. *registry.Registry
// satisfies this without the acceptor importing the registry package
// directly for anything else.
type ProducerCloser interface {
	CloseAllProducers()
}

// Acceptor runs the accept loop and worker pool for one listener.
type Acceptor struct {
	cfg     Config
	handler Handler
	closer  ProducerCloser
	log     logrus.FieldLogger

	queue    chan net.Conn
	active   int64
	rejected int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Acceptor. closer may be nil if there is nothing to
// force-close on shutdown.
func New(cfg Config, handler Handler, closer ProducerCloser, log logrus.FieldLogger) *Acceptor {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Acceptor{
		cfg:     cfg,
		handler: handler,
		closer:  closer,
		log:     log,
		queue:   make(chan net.Conn, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Serve accepts connections from ln until Shutdown is called or Accept
// returns a permanent error. It starts the worker pool and blocks
// until the accept loop exits; Shutdown from another goroutine is the
// normal way to stop it.
func (a *Acceptor) Serve(ln net.Listener) error {
	a.startWorkers()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-a.ctx.Done():
				return nil
			default:
				return err
			}
		}
		a.admit(conn)
	}
}

func (a *Acceptor) startWorkers() {
	for i := 0; i < a.cfg.Workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
}

func (a *Acceptor) worker() {
	defer a.wg.Done()
	for {
		select {
		case conn, ok := <-a.queue:
			if !ok {
				return
			}
			a.serveOne(conn)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *Acceptor) serveOne(conn net.Conn) {
	atomic.AddInt64(&a.active, 1)
	defer atomic.AddInt64(&a.active, -1)
	a.handler(conn)
}

// admit enqueues conn, rejecting it if the global cap is hit or the
// queue is already full, per the documented "close the accept socket
// for the new peer, increment rejected_connections" policy.
func (a *Acceptor) admit(conn net.Conn) {
	if a.cfg.GlobalMaxConns > 0 && atomic.LoadInt64(&a.active) >= int64(a.cfg.GlobalMaxConns) {
		a.reject(conn, "global connection cap reached")
		return
	}
	select {
	case a.queue <- conn:
	default:
		a.reject(conn, "accept queue full")
	}
}

func (a *Acceptor) reject(conn net.Conn, reason string) {
	atomic.AddInt64(&a.rejected, 1)
	a.log.WithField("reason", reason).Debug("rejecting connection")
	conn.Close()
}

// RejectedConnections reports the running count of connections turned
// away for being over capacity.
func (a *Acceptor) RejectedConnections() int64 {
	return atomic.LoadInt64(&a.rejected)
}

// ActiveConnections reports the number of connections currently being
// served by a worker.
func (a *Acceptor) ActiveConnections() int64 {
	return atomic.LoadInt64(&a.active)
}

// Shutdown closes the accept socket's context, force-closes every live
// producer (unblocking their upload loops, which will tear down their
// own mounts), then waits up to the configured deadline for the
// worker pool to drain before giving up.
func (a *Acceptor) Shutdown() {
	a.cancel()
	if a.closer != nil {
		a.closer.CloseAllProducers()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(a.cfg.ShutdownDeadline):
		a.log.Warn("shutdown deadline exceeded, abandoning remaining workers")
	}
}
