package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key or day record does not exist.
var ErrNotFound = errors.New("not found")

// KV is the durable key-value store the session store persists into. It
// has no transactions: writers serialize themselves.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// RestartPolicy decides what happens to visits a previous process left open.
type RestartPolicy string

const (
	// RestartClose closes stale visits at the record's last write time.
	RestartClose RestartPolicy = "close"
	// RestartLeave keeps stale visits open.
	RestartLeave RestartPolicy = "leave"
)

// ParseRestartPolicy validates a configured policy name.
func ParseRestartPolicy(s string) (RestartPolicy, error) {
	switch p := RestartPolicy(s); p {
	case RestartClose, RestartLeave:
		return p, nil
	case "":
		return RestartClose, nil
	}
	return "", errors.New("unknown restart policy " + s + " (use close or leave)")
}
