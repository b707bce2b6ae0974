package main

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const shutdownTimeout = 10 * time.Second

// httpServerService adapts an *http.Server into a suture.Service: Serve
// runs ListenAndServe until the context is canceled, then shuts down
// gracefully.
type httpServerService struct {
	name   string
	server *http.Server
}

func newHTTPServerService(name string, server *http.Server) *httpServerService {
	return &httpServerService{name: name, server: server}
}

func (h *httpServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return h.server.Shutdown(shutdownCtx)
	}
}

func (h *httpServerService) String() string { return h.name }
