package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/markethub/markethub/internal/config"
	"github.com/markethub/markethub/internal/logging"
	"github.com/markethub/markethub/internal/webhook"
)

func mustSign(t *testing.T, secret string, payload map[string]any) string {
	t.Helper()
	sig, err := webhook.NewSigner(secret, sigHeader).Sign(payload)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	return sig
}

func TestVerifySignature(t *testing.T) {
	secret := "test-secret"
	body := []byte(`{"task_id":"t1","status":"completed"}`)
	validSig := mustSign(t, secret, map[string]any{"task_id": "t1", "status": "completed"})

	tests := []struct {
		name        string
		secret      string
		body        []byte
		signature   string
		expectValid bool
		expectedMsg string
	}{
		{
			name:        "valid signature",
			secret:      secret,
			body:        body,
			signature:   validSig,
			expectValid: true,
			expectedMsg: "",
		},
		{
			name:        "reordered keys still verify",
			secret:      secret,
			body:        []byte(`{"status":"completed","task_id":"t1"}`),
			signature:   validSig,
			expectValid: true,
			expectedMsg: "",
		},
		{
			name:        "missing signature",
			secret:      secret,
			body:        body,
			signature:   "",
			expectValid: false,
			expectedMsg: "missing signature header",
		},
		{
			name:        "signature mismatch",
			secret:      secret,
			body:        body,
			signature:   "sha256=deadbeef",
			expectValid: false,
			expectedMsg: "sig mismatch",
		},
		{
			name:        "wrong secret",
			secret:      "wrong-secret",
			body:        body,
			signature:   validSig,
			expectValid: false,
			expectedMsg: "sig mismatch",
		},
		{
			name:        "body tampered after signing",
			secret:      secret,
			body:        []byte(`{"task_id":"t2"}`),
			signature:   validSig,
			expectValid: false,
			expectedMsg: "sig mismatch",
		},
		{
			name:        "body is not json",
			secret:      secret,
			body:        []byte(`not json`),
			signature:   validSig,
			expectValid: false,
			expectedMsg: "sig mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer := webhook.NewSigner(tt.secret, sigHeader)
			valid, msg := verifySignature(signer, tt.body, tt.signature)
			if valid != tt.expectValid {
				t.Errorf("verifySignature() valid = %v, want %v", valid, tt.expectValid)
			}
			if msg != tt.expectedMsg {
				t.Errorf("verifySignature() msg = %q, want %q", msg, tt.expectedMsg)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		length   int
		expected string
	}{
		{
			name:     "string shorter than limit",
			input:    "hello",
			length:   10,
			expected: "hello",
		},
		{
			name:     "string equal to limit",
			input:    "hello",
			length:   5,
			expected: "hello",
		},
		{
			name:     "string longer than limit",
			input:    "hello world",
			length:   5,
			expected: "hello...",
		},
		{
			name:     "empty string",
			input:    "",
			length:   5,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := truncate(tt.input, tt.length)
			if result != tt.expected {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.length, result, tt.expected)
			}
		})
	}
}

func TestHandleHook(t *testing.T) {
	signedBody := `{"task_id":"t1","status":"completed"}`
	validSig := mustSign(t, "test-secret", map[string]any{"task_id": "t1", "status": "completed"})

	tests := []struct {
		name                 string
		secret               string
		failFirstN           int
		body                 string
		signature            string
		requests             int
		expectedStatus       int
		expectedBodyContains string
	}{
		{
			name:                 "successful request without secret",
			body:                 signedBody,
			requests:             1,
			expectedStatus:       http.StatusOK,
			expectedBodyContains: `"ok":true`,
		},
		{
			name:                 "fail first request",
			failFirstN:           1,
			body:                 signedBody,
			requests:             1,
			expectedStatus:       http.StatusInternalServerError,
			expectedBodyContains: "temporary failure",
		},
		{
			name:                 "recovers after failing first request",
			failFirstN:           1,
			body:                 signedBody,
			requests:             2,
			expectedStatus:       http.StatusOK,
			expectedBodyContains: `"ok":true`,
		},
		{
			name:                 "missing signature with secret configured",
			secret:               "test-secret",
			body:                 signedBody,
			requests:             1,
			expectedStatus:       http.StatusUnauthorized,
			expectedBodyContains: "invalid signature",
		},
		{
			name:                 "valid signature with secret",
			secret:               "test-secret",
			body:                 signedBody,
			signature:            validSig,
			requests:             1,
			expectedStatus:       http.StatusOK,
			expectedBodyContains: `"status":"completed"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rcv := &receiver{
				signer:     webhook.NewSigner(tt.secret, sigHeader),
				failFirstN: tt.failFirstN,
				logger:     logging.New("fake-receiver-test"),
			}

			var w *httptest.ResponseRecorder
			for i := 0; i < tt.requests; i++ {
				req := httptest.NewRequest("POST", "/hook", strings.NewReader(tt.body))
				if tt.signature != "" {
					req.Header.Set(sigHeader, tt.signature)
				}
				w = httptest.NewRecorder()
				rcv.handleHook(w, req)
			}

			if w.Code != tt.expectedStatus {
				t.Errorf("handleHook() status = %d, want %d", w.Code, tt.expectedStatus)
			}
			if !strings.Contains(w.Body.String(), tt.expectedBodyContains) {
				t.Errorf("handleHook() body = %q, want to contain %q", w.Body.String(), tt.expectedBodyContains)
			}
		})
	}
}

// TestClientDeliveryVerified pairs the outbound client with the receiver:
// a delivery signed by one side must verify on the other.
func TestClientDeliveryVerified(t *testing.T) {
	rcv := &receiver{
		signer: webhook.NewSigner("test-secret", sigHeader),
		logger: logging.New("fake-receiver-test"),
	}
	srv := httptest.NewServer(http.HandlerFunc(rcv.handleHook))
	defer srv.Close()

	client := webhook.NewClient(config.Webhook{
		Secret:          "test-secret",
		SignatureHeader: sigHeader,
		Timeout:         5 * time.Second,
	})
	payload := map[string]any{
		"task_id": "t1",
		"status":  "completed",
		"listing": map[string]any{
			"title": "Ratón inalámbrico",
			"url":   "https://www.paris.cl/producto-PR123.html",
		},
	}

	resp, err := client.Send(context.Background(), srv.URL, payload)
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if !resp.OK() {
		t.Fatalf("Send() status = %d, body = %q, want 200", resp.StatusCode, resp.Body)
	}

	wrongSecret := webhook.NewClient(config.Webhook{
		Secret:          "other-secret",
		SignatureHeader: sigHeader,
		Timeout:         5 * time.Second,
	})
	resp, err = wrongSecret.Send(context.Background(), srv.URL, payload)
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Send() with wrong secret status = %d, want 401", resp.StatusCode)
	}
}
