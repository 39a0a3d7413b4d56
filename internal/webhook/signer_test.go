package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
)

func TestCanonicalJSON(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
	}{
		{
			name:    "sorts object keys",
			payload: map[string]any{"b": 1, "a": "x"},
			want:    `{"a": "x", "b": 1}`,
		},
		{
			name: "nested objects and arrays",
			payload: map[string]any{
				"z": []any{1, 2.5, nil, true},
				"a": map[string]any{"k": "v", "b": false},
			},
			want: `{"a": {"b": false, "k": "v"}, "z": [1, 2.5, null, true]}`,
		},
		{
			name:    "escapes non-ascii",
			payload: map[string]any{"category": "Electrónicos"},
			want:    `{"category": "Electr\u00f3nicos"}`,
		},
		{
			name:    "does not escape html characters",
			payload: map[string]any{"url": "https://a/b?x=1&y=<2>"},
			want:    `{"url": "https://a/b?x=1&y=<2>"}`,
		},
		{
			name:    "escapes quotes and control characters",
			payload: map[string]any{"q": "a\"b\\c\nd\te"},
			want:    `{"q": "a\"b\\c\nd\te"}`,
		},
		{
			name:    "astral plane as surrogate pair",
			payload: map[string]any{"icon": "🚀"},
			want:    `{"icon": "\ud83d\ude80"}`,
		},
		{
			name:    "typed maps normalize through json",
			payload: map[string]int{"webhook_retries": 0, "enhancement_retries": 2},
			want:    `{"enhancement_retries": 2, "webhook_retries": 0}`,
		},
		{
			name:    "empty object",
			payload: map[string]any{},
			want:    `{}`,
		},
		{
			name:    "arrays keep their order",
			payload: []any{"b", "a"},
			want:    `["b", "a"]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalJSON(tt.payload)
			if err != nil {
				t.Fatalf("CanonicalJSON() error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("CanonicalJSON() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCanonicalJSON_EqualAfterReformat(t *testing.T) {
	// Two wire bodies that parse to the same payload must canonicalize to
	// identical bytes, whatever their key order or escaping.
	bodies := []string{
		`{"task_id":"t-1","status":"completed","url":"https://x/y?a=1&b=2"}`,
		`{"url": "https://x/y?a=1&b=2", "status": "completed", "task_id": "t-1"}`,
	}
	var rendered []string
	for _, body := range bodies {
		var payload any
		if err := json.Unmarshal([]byte(body), &payload); err != nil {
			t.Fatalf("Unmarshal(%s) error: %v", body, err)
		}
		canon, err := CanonicalJSON(payload)
		if err != nil {
			t.Fatalf("CanonicalJSON() error: %v", err)
		}
		rendered = append(rendered, string(canon))
	}
	if rendered[0] != rendered[1] {
		t.Errorf("canonical forms differ:\n%s\n%s", rendered[0], rendered[1])
	}
}

func TestSigner_Sign(t *testing.T) {
	payload := map[string]any{"task_id": "t-1", "status": "completed"}
	s := NewSigner("secret-key", "X-Hub-Signature-256")

	got, err := s.Sign(payload)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !strings.HasPrefix(got, SignaturePrefix) {
		t.Fatalf("Sign() = %q, want %q prefix", got, SignaturePrefix)
	}
	if len(got) != len(SignaturePrefix)+64 {
		t.Errorf("Sign() digest length = %d, want 64 hex chars", len(got)-len(SignaturePrefix))
	}

	mac := hmac.New(sha256.New, []byte("secret-key"))
	mac.Write([]byte(`{"status": "completed", "task_id": "t-1"}`))
	want := SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
	if got != want {
		t.Errorf("Sign() = %q, want %q", got, want)
	}
}

func TestSigner_Verify(t *testing.T) {
	payload := map[string]any{"task_id": "t-1", "status": "failed", "retries": map[string]any{"enhancement_retries": 3}}
	s := NewSigner("secret-key", "X-Hub-Signature-256")
	sig, err := s.Sign(payload)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	tests := []struct {
		name      string
		signer    *Signer
		payload   any
		signature string
		want      bool
	}{
		{"valid signature", s, payload, sig, true},
		{"tampered payload", s, map[string]any{"task_id": "t-2", "status": "failed", "retries": map[string]any{"enhancement_retries": 3}}, sig, false},
		{"wrong secret", NewSigner("other-secret", "X-Hub-Signature-256"), payload, sig, false},
		{"empty signature", s, payload, "", false},
		{"disabled signer", NewSigner("", "X-Hub-Signature-256"), payload, sig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.signer.Verify(tt.payload, tt.signature); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSigner_VerifyBody(t *testing.T) {
	payload := map[string]any{
		"task_id":     "t-1",
		"status":      "completed",
		"listing_url": "https://wm.example/item?id=1&v=2",
	}
	s := NewSigner("secret-key", "X-Hub-Signature-256")
	sig, err := s.Sign(payload)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	// The wire body is plain json.Marshal output: compact, html-escaped,
	// unsorted. Verification must survive the formatting differences.
	marshaled, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	tests := []struct {
		name      string
		body      []byte
		signature string
		want      bool
	}{
		{"marshaled body", marshaled, sig, true},
		{"reordered keys", []byte(`{"status": "completed", "listing_url": "https://wm.example/item?id=1&v=2", "task_id": "t-1"}`), sig, true},
		{"tampered body", []byte(`{"status": "failed", "listing_url": "https://wm.example/item?id=1&v=2", "task_id": "t-1"}`), sig, false},
		{"invalid json", []byte(`{"status": `), sig, false},
		{"empty signature", marshaled, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.VerifyBody(tt.body, tt.signature); got != tt.want {
				t.Errorf("VerifyBody() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSigner_Enabled(t *testing.T) {
	if !NewSigner("secret", "X-Hub-Signature-256").Enabled() {
		t.Errorf("Enabled() = false with a secret configured")
	}
	if NewSigner("", "X-Hub-Signature-256").Enabled() {
		t.Errorf("Enabled() = true with no secret")
	}
}
