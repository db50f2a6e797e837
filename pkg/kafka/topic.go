package kafka

import (
	"fmt"
	"strings"
)

// MaxTopicNameLength is the longest topic name the brokers accept.
const MaxTopicNameLength = 249

// ValidateTopicName applies the broker's naming rules: 1 to 249 characters
// from [a-zA-Z0-9._-], and neither "." nor "..".
func ValidateTopicName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: name is empty", ErrInvalidTopic)
	case name == "." || name == "..":
		return fmt.Errorf("%w: name cannot be %q", ErrInvalidTopic, name)
	case len(name) > MaxTopicNameLength:
		return fmt.Errorf("%w: name is longer than %d characters", ErrInvalidTopic, MaxTopicNameLength)
	}
	for _, r := range name {
		if !legalTopicRune(r) {
			return fmt.Errorf("%w: name %q contains illegal character %q", ErrInvalidTopic, name, r)
		}
	}
	return nil
}

func legalTopicRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
		r == '.' || r == '_' || r == '-'
}

// IsInternalTopic reports whether name belongs to the brokers themselves,
// such as __consumer_offsets.
func IsInternalTopic(name string) bool {
	return strings.HasPrefix(name, "__")
}
