package kafka

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTopicName(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		valid bool
	}{
		{"simple", "clicks", true},
		{"all legal characters", "Ab9._-z", true},
		{"max length", strings.Repeat("a", MaxTopicNameLength), true},
		{"empty", "", false},
		{"dot", ".", false},
		{"dot dot", "..", false},
		{"too long", strings.Repeat("a", MaxTopicNameLength+1), false},
		{"space", "my topic", false},
		{"slash", "a/b", false},
		{"unicode", "tópico", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTopicName(tt.topic)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidTopic)
		})
	}
}

func TestIsInternalTopic(t *testing.T) {
	assert.True(t, IsInternalTopic("__consumer_offsets"))
	assert.False(t, IsInternalTopic("_single"))
	assert.False(t, IsInternalTopic("clicks"))
}
