package api

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const callIDPrefix = "call_"

var callIDPattern = regexp.MustCompile(`^call_[a-f0-9]{32}$`)

// NewCallID generates a dispatch call identifier: "call_" followed by a
// random UUID without dashes.
func NewCallID() string {
	return callIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidateCallID checks whether the given string is a call identifier.
func ValidateCallID(id string) bool {
	return callIDPattern.MatchString(id)
}
