package web

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"path"
	"strings"
	"time"

	"rempos/internal/bridge"
	"rempos/internal/sample"
)

// SampleResponse is the body of GET /api/sample.
type SampleResponse struct {
	Available bool           `json:"available"`
	Sample    *sample.Sample `json:"sample,omitempty"`
	Error     string         `json:"error,omitempty"`
}

var sampleFields = map[string]func(sample.Sample) any{
	"acceleration":      func(s sample.Sample) any { return s.Acceleration },
	"user_acceleration": func(s sample.Sample) any { return s.UserAcceleration },
	"orientation":       func(s sample.Sample) any { return s.Orientation },
	"gps":               func(s sample.Sample) any { return s.GPS },
	"pressure":          func(s sample.Sample) any { return s.Pressure },
	"timecode":          func(s sample.Sample) any { return s.Timecode },
}

// Handler serves the read-only HTTP surface. br may be nil, in which case
// the sample endpoints answer 503. metrics is mounted at /metrics when set.
func Handler(status *Status, br Bridge, logs *LogBuffer, metrics http.Handler) http.Handler {
	if status == nil {
		status = NewStatus()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !requireGET(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, status.Snapshot(time.Now().UTC(), br))
	})

	mux.HandleFunc("/api/sample", func(w http.ResponseWriter, r *http.Request) {
		if !requireGET(w, r) {
			return
		}
		if br == nil {
			writeJSON(w, http.StatusServiceUnavailable, SampleResponse{Error: bridge.ErrNotStarted.Error()})
			return
		}
		s, err := br.Latest()
		switch {
		case errors.Is(err, bridge.ErrNoData):
			writeJSON(w, http.StatusOK, SampleResponse{})
		case err != nil:
			writeJSON(w, http.StatusServiceUnavailable, SampleResponse{Error: err.Error()})
		default:
			writeJSON(w, http.StatusOK, SampleResponse{Available: true, Sample: &s})
		}
	})

	mux.HandleFunc("/api/sample/", func(w http.ResponseWriter, r *http.Request) {
		if !requireGET(w, r) {
			return
		}
		field := strings.TrimPrefix(r.URL.Path, "/api/sample/")
		project, ok := sampleFields[field]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if br == nil {
			http.Error(w, bridge.ErrNotStarted.Error(), http.StatusServiceUnavailable)
			return
		}
		s, err := br.Latest()
		switch {
		case errors.Is(err, bridge.ErrNoData):
			w.WriteHeader(http.StatusNoContent)
		case err != nil:
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			writeJSON(w, http.StatusOK, project(s))
		}
	})

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	mux.Handle("/api/about", AboutHandler(status.product.Load().(string), status.version.Load().(string)))

	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !requireGET(w, r) {
			return
		}
		if r.URL.Path != "/" {
			if path.Dir(r.URL.Path) == "/api" {
				http.NotFound(w, r)
				return
			}
		}

		snap := status.Snapshot(time.Now().UTC(), br)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>RemPos</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>%s %s</h1>", html.EscapeString(snap.Product), html.EscapeString(snap.Version))
		_, _ = fmt.Fprintf(w, "<p>See <a href=\"/api/status\">/api/status</a> and <a href=\"/api/sample\">/api/sample</a>.</p>")
		_, _ = fmt.Fprintf(w, "<pre>state=%s\ningest_addr=%s\nsamples_stored=%d\nconnections_open=%d\nlast_sample_utc=%s</pre>",
			html.EscapeString(snap.State), html.EscapeString(snap.IngestAddr), snap.SamplesStored, snap.ConnectionsOpen, snap.LastSampleUTC,
		)
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return mux
}

func requireGET(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", http.MethodGet)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

// Serve runs the HTTP server until ctx is done.
func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
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
