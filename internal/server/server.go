package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"chat-backend/internal/auth"
	"chat-backend/internal/relay"
)

// Server defines fields used in HTTP processing
type Server struct {
	logger     *zap.SugaredLogger
	httpServer *http.Server
	h          handler
}

// NewServer returns new Server struct wiring the store, the relay hub and the
// token issuer into the HTTP surface
func NewServer(logger *zap.SugaredLogger, store chatStore, hub *relay.Hub, tokens *auth.JWT, opts ...Option) (*Server, error) {
	srv := &Server{
		logger: logger,
		h: handler{
			logger: logger,
			store:  store,
			tokens: tokens,
			parsers: parsers{
				registerPool: fastjson.ParserPool{},
				loginPool:    fastjson.ParserPool{},
			},
		},
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(srv.h.healthz))
	mux.Handle("/auth/register", enforcePOSTJSON(http.HandlerFunc(srv.h.register)))
	mux.Handle("/auth/login", enforcePOSTJSON(http.HandlerFunc(srv.h.login)))
	mux.Handle("/users", authenticate(http.HandlerFunc(srv.h.listUsers), tokens))
	mux.Handle("/conversation/", authenticate(http.HandlerFunc(srv.h.conversation), tokens))
	mux.Handle("/ws", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		relay.ServeWS(hub, w, r)
	}))

	httpServer := &http.Server{
		Handler: log(mux, logger.Desugar()),
	}

	for _, opt := range opts {
		opt.apply(httpServer)
	}

	srv.httpServer = httpServer

	return srv, nil
}

// Start calls ListenAndServe on http.Server instance inside Server struct
// and implements graceful shutdown via goroutine waiting for signals
func (s *Server) Start() error {
	idleConnsClosed := make(chan struct{})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		s.logger.Info("Shutting down HTTP server")

		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("s.httpServer.ListenAndServe: %v", err)
	}

	<-idleConnsClosed

	return nil
}
