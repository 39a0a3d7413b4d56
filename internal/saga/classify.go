package saga

import "strings"

// ErrorKind classifies a step failure for the retry policy. Only transient
// failures go back on the ladder; everything else settles the task at once.
type ErrorKind string

const (
	// KindTransient covers upstream hiccups that usually clear on their own.
	KindTransient ErrorKind = "transient"
	// KindConfig covers setup problems, like a marketplace slug no adapter
	// handles. Retrying cannot fix these.
	KindConfig ErrorKind = "config"
	// KindPrecondition covers ordering violations, like publishing a product
	// that was never enhanced.
	KindPrecondition ErrorKind = "precondition"
	// KindPermanent is everything else.
	KindPermanent ErrorKind = "permanent"
)

// Retryable reports whether a failure of this kind gets another attempt.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient
}

// ErrCodeAIEnhancementMissing tags the precondition failure of publishing a
// product that skipped the enhancement step.
const ErrCodeAIEnhancementMissing = "AI_ENHANCEMENT_MISSING"

const msgAIEnhancementRequired = "Product must be AI-enhanced before marketplace publishing"

// transientMarkers are matched case-insensitively against failure text.
// Marketplace adapters and HTTP clients phrase their recoverable failures
// with these words.
var transientMarkers = []string{
	"timeout",
	"connection",
	"network",
	"rate limit",
	"temporary",
	"service unavailable",
	"internal server error",
	"gateway timeout",
}

// Classify maps failure text onto the retry taxonomy.
func Classify(msg string) ErrorKind {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "unsupported marketplace") {
		return KindConfig
	}
	if strings.Contains(lower, strings.ToLower(ErrCodeAIEnhancementMissing)) ||
		strings.Contains(lower, "must be ai-enhanced") {
		return KindPrecondition
	}
	for _, marker := range transientMarkers {
		if strings.Contains(lower, marker) {
			return KindTransient
		}
	}
	return KindPermanent
}
