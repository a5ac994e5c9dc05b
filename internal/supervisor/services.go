// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/mosaicus/internal/logging"
	"github.com/tomtom215/mosaicus/internal/store"
	"github.com/tomtom215/mosaicus/internal/websocket"
)

// HubService adapts the websocket hub to a suture.Service.
type HubService struct {
	Hub *websocket.Hub
}

// Serve runs the hub until the context is canceled.
func (s *HubService) Serve(ctx context.Context) error {
	return s.Hub.RunWithContext(ctx)
}

func (s *HubService) String() string { return "websocket-hub" }

// StoreGCService runs periodic Badger value-log garbage collection.
type StoreGCService struct {
	Store    *store.Store
	Interval time.Duration
}

// Serve blocks running GC until the context is canceled.
func (s *StoreGCService) Serve(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	s.Store.RunGC(ctx, interval)
	return ctx.Err()
}

func (s *StoreGCService) String() string { return "store-gc" }

// HTTPService runs an http.Server under supervision with graceful
// shutdown on context cancellation.
type HTTPService struct {
	Server          *http.Server
	ShutdownTimeout time.Duration
}

// Serve listens until the context is canceled, then drains in-flight
// requests within ShutdownTimeout.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Server.ListenAndServe()
	}()

	log := logging.WithComponent("http")
	log.Info().Str("addr", s.Server.Addr).Msg("http server listening")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		timeout := s.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.Server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown incomplete, closing")
			_ = s.Server.Close()
		}
		<-errCh
		log.Info().Msg("http server stopped")
		return ctx.Err()
	}
}

func (s *HTTPService) String() string { return "http-server" }
