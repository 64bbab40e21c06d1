package annotation

import (
	"errors"
	"fmt"
)

var (
	// ErrImageRead means the image behind a new sidecar could not be decoded
	ErrImageRead = errors.New("image read error")
	// ErrParse means the sidecar is not valid JSON or lacks required keys
	ErrParse = errors.New("sidecar parse error")
	// ErrLegacySchema marks a sidecar in the old "annotations" layout. It
	// wraps ErrParse; Migrate converts such files.
	ErrLegacySchema = fmt.Errorf("legacy sidecar schema: %w", ErrParse)
	// ErrAlreadyCanonical is returned by Migrate for files that need no migration
	ErrAlreadyCanonical = errors.New("sidecar already uses the canonical schema")
	// ErrIndex means a box index is outside [0, Len())
	ErrIndex = errors.New("box index out of range")
	// ErrBackup means the pre-save copy failed and nothing was written
	ErrBackup = errors.New("backup error")
	// ErrWrite means the sidecar could not be written
	ErrWrite = errors.New("write error")
)
