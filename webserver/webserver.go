// Package webserver serves the device list via HTTP and websocket as well as
// metrics.
package webserver

import (
	"context"
	nativeerrors "errors"
	"github.com/gorilla/mux"
	"github.com/lefinal/masc-devices/errors"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"net/http"
	"time"
)

const (
	// DefaultWriteTimeout is the default timeout for writing.
	DefaultWriteTimeout = 15 * time.Second
	// DefaultReadTimeout is the default timeout for reading.
	DefaultReadTimeout = 15 * time.Second
	// shutdownTimeout is the time to wait for open requests when shutting down.
	shutdownTimeout = 15 * time.Second
)

// Config is the configuration that is used in order to create and run a web
// server.
type Config struct {
	// ServeAddr is the address for the web server to listen on.
	ServeAddr string
	// WriteTimeout is the duration to wait until write fails with a timeout.
	WriteTimeout time.Duration
	// ReadTimeout is the duration to wait until read fails with a timeout.
	ReadTimeout time.Duration
}

// WebServer serves routes added with PopulateRoutes. Run it with Run.
type WebServer struct {
	logger     *zap.Logger
	config     Config
	httpServer *http.Server
	router     *mux.Router
}

// NewWebServer creates a new WebServer. Timeouts default to
// DefaultWriteTimeout and DefaultReadTimeout. Run it with WebServer.Run and do
// not forget to call WebServer.PopulateRoutes before.
func NewWebServer(logger *zap.Logger, config Config) (*WebServer, error) {
	if config.ServeAddr == "" {
		return nil, errors.NewInvalidConfigError("no serve addr provided", nil)
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	server := &WebServer{
		logger: logger,
		config: config,
		router: mux.NewRouter(),
	}
	server.router.Use(loggingMiddleware(logger))
	server.router.Use(noCacheMiddleware)
	server.router.NotFoundHandler = noCacheMiddleware(loggingMiddleware(logger)(http.NotFoundHandler()))
	server.httpServer = &http.Server{
		Handler: cors.New(cors.Options{
			AllowedMethods: []string{http.MethodGet},
		}).Handler(server.router),
		Addr:         config.ServeAddr,
		WriteTimeout: config.WriteTimeout,
		ReadTimeout:  config.ReadTimeout,
	}
	return server, nil
}

// Handler returns the http.Handler with all routes and middlewares.
func (server *WebServer) Handler() http.Handler {
	return server.httpServer.Handler
}

// Run the web server until the given context.Context is done.
func (server *WebServer) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		server.logger.Info("web server running", zap.String("addr", server.config.ServeAddr))
		err := server.httpServer.ListenAndServe()
		if err != nil && !nativeerrors.Is(err, http.ErrServerClosed) {
			serveErr <- errors.Error{
				Code:    errors.ErrFatal,
				Err:     err,
				Message: "listen and serve",
				Details: errors.Details{"addr": server.config.ServeAddr},
			}
		}
		close(serveErr)
	}()
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := server.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		return errors.NewInternalErrorFromErr(err, "shutdown web server", nil)
	}
	return nil
}
