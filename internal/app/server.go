package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vk/blockgrid/internal/scheduler"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 5 * time.Second
	writeTimeout    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	// The feed is read-only and unauthenticated, like /health.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler returns the mux served on the healthcheck port.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.Handle("/metrics", a.telemetry.Handler())
	mux.HandleFunc("/events", a.eventsHandler)
	return mux
}

// healthHandler reports liveness.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// eventsHandler streams every run event as one JSON message each until the
// client goes away or the feed closes.
func (a *App) eventsHandler(w http.ResponseWriter, r *http.Request) {
	// Subscribed before the handshake completes so no event after it is missed.
	events, unsubscribe := a.feed.Subscribe(a.scheduler.Config().EventBuffer)
	defer unsubscribe()

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("Event stream upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	defer ws.Close()
	a.logger.Debug("Event subscriber connected.", "remote_addr", r.RemoteAddr)

	// Reading is only needed to notice the client closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "feed closed"),
					time.Now().Add(writeTimeout))
				return
			}
			if err := write(ws, ev); err != nil {
				a.logger.Debug("Event subscriber dropped.", "remote_addr", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}

func write(ws *websocket.Conn, ev scheduler.Event) error {
	if err := ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return ws.WriteJSON(ev)
}

// startServer listens on port and serves Handler in g. Listening happens
// before returning so a busy port fails the run up front.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, port int) (*http.Server, error) {
	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("health check server: %w", err)
	}
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	a.server = srv

	g.Go(func() error {
		a.logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health check server failed: %w", err)
		}
		return nil
	})
	return srv, nil
}

func (a *App) stopServer(ctx context.Context, srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	a.logger.Info("🩺 Shutting down health check server...")
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Error("Health check server shutdown failed", "error", err)
	}
}
