package saga

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		msg  string
		want ErrorKind
	}{
		{"Marketplace publishing failed: connection reset by peer", KindTransient},
		{"Request TIMEOUT after 30s", KindTransient},
		{"rate limit exceeded, retry later", KindTransient},
		{"Temporary failure in name resolution", KindTransient},
		{"503 Service Unavailable", KindTransient},
		{"vendor returned internal server error", KindTransient},
		{"504 Gateway Timeout", KindTransient},
		{"network unreachable", KindTransient},
		{"unsupported marketplace: etsy", KindConfig},
		{"Unsupported Marketplace", KindConfig},
		{"AI_ENHANCEMENT_MISSING: Product must be AI-enhanced before marketplace publishing", KindPrecondition},
		{"invalid credentials", KindPermanent},
		{"category mapping rejected", KindPermanent},
		{"", KindPermanent},
	}
	for _, tc := range cases {
		if got := Classify(tc.msg); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.msg, got, tc.want)
		}
	}
}

func TestErrorKindRetryable(t *testing.T) {
	if !KindTransient.Retryable() {
		t.Error("transient failures should retry")
	}
	for _, k := range []ErrorKind{KindConfig, KindPrecondition, KindPermanent} {
		if k.Retryable() {
			t.Errorf("%s failures should not retry", k)
		}
	}
}
