// Package server runs the HTTP front end as a set of workers.
//
// Every worker is an independent http.Server. With reuse-port the kernel
// spreads incoming connections over one listening socket per worker;
// otherwise the workers accept from a single shared socket. Workers hold
// no session state of their own, so any request can land on any worker.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Options configures the worker pool.
type Options struct {
	Addr    string
	Workers int

	// ReusePort binds one socket per worker with SO_REUSEPORT where the
	// platform supports it.
	ReusePort bool

	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration

	Logger *zerolog.Logger
}

func (o Options) workers() int {
	if o.Workers < 1 {
		return 1
	}
	return o.Workers
}

func (o Options) logger() zerolog.Logger {
	if o.Logger != nil {
		return *o.Logger
	}
	return log.Logger
}

// Run listens on opts.Addr and serves handler until ctx is cancelled, then
// shuts every worker down gracefully.
func Run(ctx context.Context, opts Options, handler http.Handler) error {
	listeners, err := Listen(ctx, opts)
	if err != nil {
		return err
	}
	return Serve(ctx, opts, listeners, handler)
}

// Listen opens one listener per worker. Without reuse-port every entry is
// the same shared listener.
func Listen(ctx context.Context, opts Options) ([]net.Listener, error) {
	workers := opts.workers()
	logger := opts.logger()

	if opts.ReusePort && reusePortSupported {
		lc := net.ListenConfig{Control: reusePortControl}

		first, err := lc.Listen(ctx, "tcp", opts.Addr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", opts.Addr, err)
		}

		// Later sockets bind the resolved address so ":0" yields one port.
		addr := first.Addr().String()
		listeners := []net.Listener{first}
		for i := 1; i < workers; i++ {
			ln, err := lc.Listen(ctx, "tcp", addr)
			if err != nil {
				closeAll(listeners)
				return nil, fmt.Errorf("failed to listen on %s for worker %d: %w", addr, i, err)
			}
			listeners = append(listeners, ln)
		}

		logger.Info().Str("addr", addr).Int("workers", workers).Msg("listening with SO_REUSEPORT")
		return listeners, nil
	}

	if opts.ReusePort {
		logger.Warn().Msg("SO_REUSEPORT not supported on this platform, workers share one listener")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", opts.Addr, err)
	}

	shared := &sharedListener{Listener: ln}
	listeners := make([]net.Listener, workers)
	for i := range listeners {
		listeners[i] = shared
	}

	logger.Info().Str("addr", ln.Addr().String()).Int("workers", workers).Msg("listening on shared socket")
	return listeners, nil
}

// Serve runs one http.Server per listener until ctx is cancelled or a
// worker fails, then shuts them all down within opts.ShutdownTimeout.
func Serve(ctx context.Context, opts Options, listeners []net.Listener, handler http.Handler) error {
	logger := opts.logger()
	g, gctx := errgroup.WithContext(ctx)

	servers := make([]*http.Server, len(listeners))
	for i, ln := range listeners {
		i, ln := i, ln // per-iteration copies (go1.22 loopvar semantics under go 1.21)
		srv := &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: opts.ReadHeaderTimeout,
			IdleTimeout:       opts.IdleTimeout,
		}
		servers[i] = srv

		g.Go(func() error {
			logger.Debug().Int("worker", i).Str("addr", ln.Addr().String()).Msg("worker started")
			err := srv.Serve(ln)
			switch {
			case err == nil, errors.Is(err, http.ErrServerClosed):
				return nil
			case errors.Is(err, net.ErrClosed) && gctx.Err() != nil:
				// A peer worker closed the shared socket first.
				return nil
			default:
				return fmt.Errorf("worker %d: %w", i, err)
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down workers")

		timeout := opts.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
		)
		for i, srv := range servers {
			i, srv := i, srv // per-iteration copies (go1.22 loopvar semantics under go 1.21)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("worker %d shutdown: %w", i, err))
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		return errors.Join(errs...)
	})

	return g.Wait()
}

// sharedListener lets several servers own one socket. Only the first Close
// reaches the socket.
type sharedListener struct {
	net.Listener
	once sync.Once
	err  error
}

func (l *sharedListener) Close() error {
	l.once.Do(func() { l.err = l.Listener.Close() })
	return l.err
}

func closeAll(listeners []net.Listener) {
	for _, ln := range listeners {
		_ = ln.Close()
	}
}
