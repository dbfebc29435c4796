// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package rpc provides the HTTP server for incoming JSON-RPC requests to
// bridged from operator tooling and, on a separate path, Prometheus
// scrapes. Requests are answered by a single bridge namespace backed by
// the orchestrator.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	gorillarpc "github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	logging "github.com/ipfs/go-log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantumbridge/bridge/metrics"
)

const bridgeNamespace = "bridge" //nolint:revive

var log = logging.Logger("rpc")

// Server is the bridge's admin/operator HTTP server: a JSON-RPC endpoint
// at "/" and a Prometheus scrape endpoint at "/metrics".
type Server struct {
	ctx        context.Context
	listener   net.Listener
	httpServer *http.Server
}

// Config configures a new Server.
type Config struct {
	Ctx          context.Context
	Address      string // "IP:port"
	Orchestrator BridgeOrchestrator
	Metrics      *metrics.Registry
}

// NewServer builds a Server but does not yet accept connections -- call
// Start to begin serving.
func NewServer(cfg *Config) (*Server, error) {
	rpcServer := gorillarpc.NewServer()
	rpcServer.RegisterCodec(json2.NewCodec(), "application/json")
	if err := rpcServer.RegisterService(NewBridgeService(cfg.Orchestrator), bridgeNamespace); err != nil {
		return nil, fmt.Errorf("registering %s service: %w", bridgeNamespace, err)
	}

	serverCtx, serverCancel := context.WithCancel(cfg.Ctx)

	r := mux.NewRouter()
	r.Handle("/", rpcServer)
	if cfg.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics.Gatherer(), promhttp.HandlerOpts{}))
	}

	headersOk := handlers.AllowedHeaders([]string{"content-type"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"})
	originsOk := handlers.AllowedOrigins([]string{"*"})

	lc := net.ListenConfig{}
	ln, err := lc.Listen(serverCtx, "tcp", cfg.Address)
	if err != nil {
		serverCancel()
		return nil, err
	}

	server := &http.Server{
		Addr:              ln.Addr().String(),
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           handlers.CORS(headersOk, methodsOk, originsOk)(r),
		BaseContext: func(net.Listener) context.Context {
			return serverCtx
		},
	}

	return &Server{
		ctx:        serverCtx,
		listener:   ln,
		httpServer: server,
	}, nil
}

// URL returns the server's HTTP base URL.
func (s *Server) URL() string {
	return fmt.Sprintf("http://%s", s.httpServer.Addr)
}

// Start serves JSON-RPC and metrics requests until the server's context
// is cancelled or Stop is called.
func (s *Server) Start() error {
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}

	log.Infof("starting rpc server on %s", s.URL())

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-s.ctx.Done():
		err := s.httpServer.Shutdown(s.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warnf("rpc server shutdown errored: %s", err)
		}
		return s.ctx.Err()
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("rpc server failed: %s", err)
		} else {
			log.Info("rpc server shut down")
		}
		return err
	}
}

// Stop gracefully shuts the server down, servicing in-flight requests.
func (s *Server) Stop() error {
	return s.httpServer.Shutdown(s.ctx)
}
