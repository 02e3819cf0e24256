package syncqueue

// Pattern is a user-facing signal emitted after a drain.
type Pattern string

// Feedback patterns.
const (
	PatternSuccess Pattern = "success"
	PatternFailure Pattern = "failure"
)

// Feedback receives drain outcome signals. Implementations render them
// however the host surface can (terminal styling, haptics, sounds).
type Feedback interface {
	Notify(p Pattern)
}

// FeedbackFunc adapts a function to Feedback.
type FeedbackFunc func(p Pattern)

// Notify calls f(p).
func (f FeedbackFunc) Notify(p Pattern) { f(p) }

type noFeedback struct{}

func (noFeedback) Notify(Pattern) {}

// patternFor picks the signal for a finished drain, or "" for none.
func patternFor(synced, failed int) Pattern {
	switch {
	case synced > 0:
		return PatternSuccess
	case failed > 0:
		return PatternFailure
	default:
		return ""
	}
}
