// Package status serves a read-only HTTP view of the running application.
//
//	status:
//	  listen: 127.0.0.1:8086
//	  read_header_timeout: 5s
//
// Routes:
//
//	GET /healthz       200 once the application executes, 503 before
//	GET /phase         current lifecycle phase
//	GET /nodes         every node with its state
//	GET /nodes/{path}  one node, path segments separated by "/"
package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GoCodeAlone/modgraph"
	"github.com/GoCodeAlone/modgraph/linker"
	"github.com/GoCodeAlone/modgraph/registry"
)

const (
	ModuleName = "status"

	DefaultListen            = "127.0.0.1:8086"
	DefaultReadHeaderTimeout = 5 * time.Second
)

var ErrServerNotStarted = errors.New("status server not started")

// Module is the status HTTP server.
type Module struct {
	Listen            string
	ReadHeaderTimeout time.Duration

	app    modgraph.Introspector
	logger modgraph.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	served   chan struct{}
}

// Descriptor declares the status module.
func Descriptor() *modgraph.Descriptor {
	return modgraph.NewModule[Module](ModuleName).
		Bind(
			linker.ValueOr("Listen", "listen", DefaultListen, func(m *Module, v string) { m.Listen = v }),
			linker.ValueOr("ReadHeaderTimeout", "read_header_timeout", DefaultReadHeaderTimeout,
				func(m *Module, v time.Duration) { m.ReadHeaderTimeout = v }),
		).
		OnStart(func(_ context.Context, m *Module) error { return m.start() }).
		OnShutdown(func(ctx context.Context, m *Module) error { return m.stop(ctx) }).
		OnShutdownNow(func(_ context.Context, m *Module) error { return m.close() }).
		Descriptor()
}

// Register registers the module type and its descriptor.
func Register(app *modgraph.Application) error {
	err := app.Registry().Register(
		registry.Bean[Module](nil).
			Inject(
				registry.InjectAs("introspector", func(m *Module, i modgraph.Introspector) { m.app = i }),
				registry.InjectAs("logger", func(m *Module, l modgraph.Logger) { m.logger = l }),
			).
			Descriptor(),
	)
	if err != nil {
		return fmt.Errorf("register status types: %w", err)
	}
	return app.RegisterModule(Descriptor())
}

// Handler returns the router serving the status routes.
func (m *Module) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", m.health)
	r.Get("/phase", m.phase)
	r.Get("/nodes", m.nodes)
	r.Get("/nodes/*", m.node)
	return r
}

// Addr returns the bound address once the module started.
func (m *Module) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

func (m *Module) start() error {
	ln, err := net.Listen("tcp", m.Listen)
	if err != nil {
		return fmt.Errorf("status listen on %s: %w", m.Listen, err)
	}
	srv := &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: m.ReadHeaderTimeout,
	}
	served := make(chan struct{})

	m.mu.Lock()
	m.server, m.listener, m.served = srv, ln, served
	m.mu.Unlock()

	go func() {
		defer close(served)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("Status server failed", "address", ln.Addr().String(), "error", err)
		}
	}()
	m.logger.Info("Status server listening", "address", ln.Addr().String())
	return nil
}

func (m *Module) stop(ctx context.Context) error {
	m.mu.Lock()
	srv, served := m.server, m.served
	m.mu.Unlock()
	if srv == nil {
		return ErrServerNotStarted
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down status server: %w", err)
	}
	<-served
	m.logger.Info("Status server stopped")
	return nil
}

func (m *Module) close() error {
	m.mu.Lock()
	srv := m.server
	m.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Close()
}
