// Package web is the HTTP surface: the websocket feed endpoint plus small
// JSON endpoints for status, logs, and metrics.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"navfuse/internal/hub"
	"navfuse/internal/metrics"
)

func Handler(h *hub.Hub, src Sources, logs *LogBuffer, m *metrics.Set) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/ws", wsHandler(h))

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		resp := src.snapshot(time.Now().UTC().Format(time.RFC3339Nano))
		b, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			http.Error(w, "marshal failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
		_, _ = w.Write([]byte("\n"))
	})

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}
	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<!doctype html><html><head><meta charset="utf-8"><title>navfuse</title></head><body>
<h1>navfuse</h1>
<p>Sensor feed at <code>/ws</code>. See <a href="/api/status">/api/status</a>,
<a href="/api/logs">/api/logs</a>, <a href="/metrics">/metrics</a>.</p>
</body></html>
`))
	})

	return mux
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func Serve(ctx context.Context, listenAddr string, handler http.Handler) error {
	// No blanket read/write timeouts: /ws connections are long-lived.
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
