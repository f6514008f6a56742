package queue

import "strings"

// Category is the retry disposition of a failure.
type Category int

const (
	// CategoryTransient failures retry with backoff. Everything that is not
	// recognizably permanent or temporary lands here.
	CategoryTransient Category = iota
	// CategoryTemporary failures are provider-side conditions expected to
	// clear on their own; they retry with backoff like transient ones but
	// are kept distinct for display.
	CategoryTemporary
	// CategoryPermanent failures are never auto-retried.
	CategoryPermanent
)

func (c Category) String() string {
	switch c {
	case CategoryPermanent:
		return "permanent"
	case CategoryTemporary:
		return "temporary"
	default:
		return "transient"
	}
}

// Message-pattern classification is fragile by nature; this function is the
// single place it lives so structured provider error codes can replace it
// without touching the retry math.
var permanentPatterns = []string{
	"video unavailable",
	"private",
	"deleted",
	"removed",
	"age-restricted",
	"age restricted",
	"copyright",
	"blocked",
	"sign in",
	"sign-in",
	"login required",
	"login-required",
	"members-only",
	"members only",
}

var temporaryPatterns = []string{
	"no suitable stream",
	"no streams found",
	"processing",
	"try again later",
	"temporarily",
}

// ClassifyError categorizes a human-readable failure message,
// case-insensitively, permanent patterns first.
func ClassifyError(message string) Category {
	lower := strings.ToLower(message)
	for _, p := range permanentPatterns {
		if strings.Contains(lower, p) {
			return CategoryPermanent
		}
	}
	for _, p := range temporaryPatterns {
		if strings.Contains(lower, p) {
			return CategoryTemporary
		}
	}
	return CategoryTransient
}
