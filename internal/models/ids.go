package models

import (
	"strings"

	"github.com/google/uuid"
)

// coursegenNamespace scopes deterministic ids to this service
var coursegenNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("coursegen"))

// DeterministicID derives a stable UUID from its parts, so re-running a
// generation for the same course produces the same row ids.
func DeterministicID(parts ...string) string {
	return uuid.NewSHA1(coursegenNamespace, []byte(strings.Join(parts, "/"))).String()
}
