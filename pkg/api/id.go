package api

import "github.com/google/uuid"

// NewTaskID returns a random UUIDv4 string used to key asynchronous tasks.
func NewTaskID() string {
	return uuid.NewString()
}

// ValidateTaskID reports whether id is a canonical UUID string.
func ValidateTaskID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// NewScratchName returns a unique base name for a scratch script file with
// the given extension (including the dot).
func NewScratchName(ext string) string {
	return "runbox-" + uuid.NewString() + ext
}
