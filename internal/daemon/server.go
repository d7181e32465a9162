package daemon

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"git.skarv.dev/infra/gitmirror/internal/logfields"
	"git.skarv.dev/infra/gitmirror/internal/metrics"
)

// pushEvent carries the fields we read from a forge push webhook payload.
// Manual triggers may post an empty body instead.
type pushEvent struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// serveHTTP runs the trigger listener and the metrics listener until ctx
// is canceled, then shuts both down gracefully.
func (d *Daemon) serveHTTP(ctx context.Context, listenAddr, metricsAddr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/trigger", d.handleTrigger)
	mux.HandleFunc("/healthz", d.handleHealthz)
	mux.HandleFunc("/runs", d.handleRuns)

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.HTTPHandler(d.registry))
	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		d.logger.Info("Trigger server starting", slog.String("addr", listenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		d.logger.Info("Metrics server starting", slog.String("addr", metricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		d.logger.Info("Shutting down HTTP servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if merr := metricsServer.Shutdown(shutdownCtx); err == nil {
			err = merr
		}
		return err
	case err := <-errCh:
		return err
	}
}

// handleTrigger accepts a mirror trigger, either a bare POST or a forge
// push webhook. Runs are debounced so bursts of pushes collapse into one.
func (d *Daemon) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		d.logger.Error("Failed to read trigger body", logfields.Error(err))
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	if len(d.secret) > 0 {
		if !d.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
			d.logger.Warn("Rejecting trigger with invalid signature")
			http.Error(w, "Invalid signature", http.StatusForbidden)
			return
		}
	}

	// A webhook payload may name the pushed ref; filter when configured.
	if len(body) > 0 {
		var event pushEvent
		if err := json.Unmarshal(body, &event); err == nil && event.Ref != "" {
			if !d.isRefAllowed(event.Ref) {
				d.logger.Info("Ignoring push for non-mirrored ref", logfields.Ref(event.Ref))
				w.WriteHeader(http.StatusOK)
				_, _ = fmt.Fprintln(w, "Ref not configured for mirroring")
				return
			}
			d.logger.Info("Trigger accepted",
				logfields.Ref(event.Ref),
				logfields.Commit(event.After),
				logfields.Repository(event.Repository.FullName))
		}
	}

	d.debounce.trigger(func() {
		d.performMirror(context.Background())
	})

	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprintln(w, "Mirror triggered")
}

func (d *Daemon) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleRuns serves recent run history as JSON, newest first.
func (d *Daemon) handleRuns(w http.ResponseWriter, r *http.Request) {
	if d.store == nil {
		http.Error(w, "History not configured", http.StatusNotFound)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	runs, err := d.store.ListRuns(r.Context(), limit)
	if err != nil {
		d.logger.Error("Failed to list runs", logfields.Error(err))
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}

	type runJSON struct {
		RunID        string    `json:"run_id"`
		StartedAt    time.Time `json:"started_at"`
		DurationMS   int64     `json:"duration_ms"`
		Outcome      string    `json:"outcome"`
		CommitSHA    string    `json:"commit_sha,omitempty"`
		FilesAdded   int       `json:"files_added"`
		FilesUpdated int       `json:"files_updated"`
		FilesDeleted int       `json:"files_deleted"`
		Error        string    `json:"error,omitempty"`
	}

	out := make([]runJSON, 0, len(runs))
	for _, run := range runs {
		out = append(out, runJSON{
			RunID:        run.RunID,
			StartedAt:    run.StartedAt,
			DurationMS:   run.Duration.Milliseconds(),
			Outcome:      run.Outcome,
			CommitSHA:    run.CommitSHA,
			FilesAdded:   run.FilesAdded,
			FilesUpdated: run.FilesUpdated,
			FilesDeleted: run.FilesDeleted,
			Error:        run.Error,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// verifySignature checks the GitHub-style HMAC signature over the body.
func (d *Daemon) verifySignature(body []byte, signature string) bool {
	if signature == "" || !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, d.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

func (d *Daemon) isRefAllowed(ref string) bool {
	allowed := d.getConfig().Daemon.AllowedRefs
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if ref == a {
			return true
		}
	}
	return false
}
