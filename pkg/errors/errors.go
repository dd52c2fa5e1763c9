package apperrors

import "errors"

// Standardized simulator errors
var (
	ErrMissingConfigKey       = errors.New("missing required configuration key")
	ErrInvalidConfigValue     = errors.New("invalid configuration value")
	ErrSnapshotsExhausted     = errors.New("historical snapshots exhausted")
	ErrSnapshotFileUnreadable = errors.New("snapshot file unreadable")
	ErrSourceClosed           = errors.New("snapshot source closed")
	ErrNoSnapshots            = errors.New("snapshot file contains no snapshots")
)
