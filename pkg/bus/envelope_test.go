package bus

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"single character", "a", false},
		{"typical message", "hello there", false},
		{"max length", strings.Repeat("x", 2000), false},
		{"empty", "", true},
		{"over max length", strings.Repeat("x", 2001), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateText(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSessionID(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		wantErr   bool
	}{
		{"alphanumeric", "session1", false},
		{"with hyphen and underscore", "user_42-a", false},
		{"max length", strings.Repeat("a", 100), false},
		{"empty", "", true},
		{"over max length", strings.Repeat("a", 101), true},
		{"channel injection attempt", "x:reply.*", true},
		{"whitespace", "a b", true},
		{"dot", "a.b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionID(tt.sessionID)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequestEnvelopeValidate(t *testing.T) {
	valid := RequestEnvelope{
		RequestID:     "req-1",
		SessionID:     "session-1",
		Text:          "hello",
		MemoryContext: []string{"one", "two", "three"},
	}

	t.Run("valid envelope", func(t *testing.T) {
		e := valid
		assert.NoError(t, e.Validate())
	})

	t.Run("empty memory context is allowed", func(t *testing.T) {
		e := valid
		e.MemoryContext = nil
		assert.NoError(t, e.Validate())
	})

	t.Run("missing request id", func(t *testing.T) {
		e := valid
		e.RequestID = ""
		assert.Error(t, e.Validate())
	})

	t.Run("bad session id", func(t *testing.T) {
		e := valid
		e.SessionID = "no spaces allowed"
		assert.Error(t, e.Validate())
	})

	t.Run("too much context", func(t *testing.T) {
		e := valid
		e.MemoryContext = []string{"1", "2", "3", "4"}
		assert.Error(t, e.Validate())
	})
}
