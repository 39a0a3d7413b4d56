package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/markethub/markethub/internal/config"
	"github.com/markethub/markethub/internal/logging"
	"github.com/markethub/markethub/internal/webhook"
)

const sigHeader = "X-Hub-Signature-256" // sha256=<hex>

// receiver is a webhook target for local testing: it verifies signatures
// when a secret is configured and can fail the first N requests to
// exercise the retry ladder.
type receiver struct {
	signer        *webhook.Signer
	failFirstN    int
	responseDelay time.Duration
	logger        *logging.Logger

	mu       sync.Mutex
	reqCount int
}

func main() {
	_ = godotenv.Load()

	logger := logging.New("markethub-fake-receiver")

	cfg, err := config.Load()
	if err != nil {
		logger.Plain().WithError(err).Fatal("config load failed")
	}

	rcv := &receiver{
		signer:        webhook.NewSigner(cfg.FakeReceiver.EndpointSecret, cfg.Webhook.SignatureHeader),
		failFirstN:    cfg.FakeReceiver.FailFirstN,
		responseDelay: time.Duration(cfg.FakeReceiver.ResponseDelayMS) * time.Millisecond,
		logger:        logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/hook", rcv.handleHook)

	srv := &http.Server{
		Addr:         cfg.FakeReceiver.Port,
		Handler:      mux,
		ReadTimeout:  cfg.FakeReceiver.ReadTimeout,
		WriteTimeout: cfg.FakeReceiver.WriteTimeout,
		IdleTimeout:  cfg.FakeReceiver.IdleTimeout,
	}
	logger.Plain().WithField("addr", srv.Addr).Info("fake-receiver listening")
	logger.Plain().WithError(srv.ListenAndServe()).Fatal("fake-receiver stopped")
}

func (rc *receiver) handleHook(w http.ResponseWriter, r *http.Request) {
	rc.mu.Lock()
	rc.reqCount++
	count := rc.reqCount
	rc.mu.Unlock()

	b, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if rc.responseDelay > 0 {
		time.Sleep(rc.responseDelay)
	}

	if rc.signer.Enabled() {
		if ok, msg := verifySignature(rc.signer, b, r.Header.Get(rc.signer.Header())); !ok {
			rc.logger.Plain().WithField("reason", msg).Warn("signature verification failed")
			http.Error(w, "invalid signature: "+msg, http.StatusUnauthorized)
			return
		}
	}

	var payload map[string]any
	_ = json.Unmarshal(b, &payload)
	eventType, _ := payload["status"].(string)

	// Simulate flakiness: first N requests -> 500
	if count <= rc.failFirstN {
		rc.logger.Plain().WithFields(map[string]any{
			"count": count,
			"of":    rc.failFirstN,
			"body":  truncate(string(b), 160),
		}).Warn("failing request")
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	rc.logger.Plain().WithFields(map[string]any{
		"status": eventType,
		"body":   truncate(string(b), 160),
	}).Info("webhook received")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "received": payload})
}

// verifySignature checks the sha256=<hex> HMAC against the shared secret.
// The sender signs the canonical payload rendering, not the raw body, so
// the body is parsed and re-canonicalized before comparing.
func verifySignature(signer *webhook.Signer, body []byte, sigHeaderVal string) (bool, string) {
	if sigHeaderVal == "" {
		return false, "missing signature header"
	}
	if !signer.VerifyBody(body, sigHeaderVal) {
		return false, "sig mismatch"
	}
	return true, ""
}

// truncate truncates a string to the specified length and adds an ellipsis if truncated
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
