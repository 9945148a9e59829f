package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

// Agreement requests can wait on a headless browser render, so writes get
// minutes rather than seconds.
const (
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 3 * time.Minute
	idleTimeout       = 2 * time.Minute
)

// New builds the API server. net/http's own errors (TLS handshakes, broken
// connections) go to logger at warn level.
func New(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	if logger != nil {
		srv.ErrorLog = slog.NewLogLogger(logger.Handler(), slog.LevelWarn)
	}
	return srv
}
