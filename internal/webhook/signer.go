package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf16"
)

// SignaturePrefix is prepended to the hex digest in the signature header.
const SignaturePrefix = "sha256="

// Signer computes HMAC-SHA256 payload signatures. The MAC covers the
// canonical rendering of the payload, not the raw request body, so
// receivers must parse the body and re-canonicalize before verifying.
// An empty secret disables signing.
type Signer struct {
	secret []byte
	header string
}

func NewSigner(secret, header string) *Signer {
	return &Signer{secret: []byte(secret), header: header}
}

// Enabled reports whether a signing secret is configured.
func (s *Signer) Enabled() bool {
	return len(s.secret) > 0
}

// Header returns the HTTP header the signature travels in.
func (s *Signer) Header() string {
	return s.header
}

// Sign returns "sha256=<hex mac>" over the canonical payload rendering.
func (s *Signer) Sign(payload any) (string, error) {
	canon, err := CanonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(canon)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks signature against the payload in constant time.
func (s *Signer) Verify(payload any, signature string) bool {
	if !s.Enabled() || signature == "" {
		return false
	}
	want, err := s.Sign(payload)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(signature))
}

// VerifyBody parses a received request body and verifies its signature
// against the re-canonicalized payload.
func (s *Signer) VerifyBody(body []byte, signature string) bool {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	return s.Verify(payload, signature)
}

// CanonicalJSON renders v deterministically: object keys sorted, ", " and
// ": " separators, non-ASCII escaped. Two payloads that parse equal
// canonicalize to identical bytes regardless of how the sender formatted
// the wire body.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case string:
		writeCanonicalString(buf, t)
	case float64, int, int32, int64, json.Number:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("canonicalize number: %w", err)
		}
		buf.Write(b)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(", ")
			}
			writeCanonicalString(buf, k)
			buf.WriteString(": ")
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteString(", ")
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		// Anything else (structs, typed maps and slices, uuids) is
		// normalized through a JSON round trip first.
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("canonicalize %T: %w", v, err)
		}
		var norm any
		if err := json.Unmarshal(b, &norm); err != nil {
			return fmt.Errorf("canonicalize %T: %w", v, err)
		}
		return writeCanonical(buf, norm)
	}
	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r < 0x20:
			fmt.Fprintf(buf, `\u%04x`, r)
		case r < 0x80:
			buf.WriteByte(byte(r))
		case r <= 0xffff:
			fmt.Fprintf(buf, `\u%04x`, r)
		default:
			r1, r2 := utf16.EncodeRune(r)
			fmt.Fprintf(buf, `\u%04x\u%04x`, r1, r2)
		}
	}
	buf.WriteByte('"')
}
