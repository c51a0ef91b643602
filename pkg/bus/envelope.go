package bus

import (
	"fmt"
	"regexp"
)

const (
	// MaxTextLength is the upper bound on user input text.
	MaxTextLength = 2000

	// MaxMemoryContext is the maximum number of contextual memory snippets
	// attached to a request. Enrichment is best-effort; fewer (or zero) is fine.
	MaxMemoryContext = 3
)

// sessionIDPattern restricts session ids to a safe character set so they can
// never inject separators into channel names or Redis keys.
var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,100}$`)

// RequestEnvelope is the payload published to the user.input channel.
// Immutable once published.
type RequestEnvelope struct {
	RequestID     string   `json:"request_id"`
	SessionID     string   `json:"session_id"`
	Text          string   `json:"text"`
	MemoryContext []string `json:"memory_context"`
}

// Validate checks the envelope against the wire contract.
func (r *RequestEnvelope) Validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("request_id cannot be empty")
	}
	if err := ValidateSessionID(r.SessionID); err != nil {
		return err
	}
	if err := ValidateText(r.Text); err != nil {
		return err
	}
	if len(r.MemoryContext) > MaxMemoryContext {
		return fmt.Errorf("memory_context cannot exceed %d entries (got %d)", MaxMemoryContext, len(r.MemoryContext))
	}
	return nil
}

// Entity is a single extracted entity in a reply interpretation.
type Entity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ReplyEnvelope is the payload published to reply.{request_id} by the
// downstream owner of the request. The gateway only requires the response
// field; the interpretation fields ride along for interested subscribers.
type ReplyEnvelope struct {
	RequestID        string   `json:"request_id"`
	SessionID        string   `json:"session_id,omitempty"`
	Response         string   `json:"response"`
	Intent           string   `json:"intent,omitempty"`
	IntentConfidence float64  `json:"intent_confidence,omitempty"`
	Entities         []Entity `json:"entities,omitempty"`
	Sentiment        string   `json:"sentiment,omitempty"`
	SentimentScore   float64  `json:"sentiment_score,omitempty"`
}

// ValidateText checks user input text bounds (1-2000 characters).
func ValidateText(text string) error {
	if len(text) == 0 {
		return fmt.Errorf("text cannot be empty")
	}
	if len(text) > MaxTextLength {
		return fmt.Errorf("text cannot exceed %d characters (got %d)", MaxTextLength, len(text))
	}
	return nil
}

// ValidateSessionID checks a session id against the safe character set.
func ValidateSessionID(sessionID string) error {
	if !sessionIDPattern.MatchString(sessionID) {
		return fmt.Errorf("session_id must match [a-zA-Z0-9_-]{1,100}")
	}
	return nil
}
