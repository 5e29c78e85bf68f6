package model

import "github.com/oklog/ulid/v2"

// NewID returns a new ULID string. Instances and tasks are keyed by it, so
// journal rows sort by creation time.
func NewID() string {
	return ulid.Make().String()
}
