package domain

import "context"

// Storage persists credential values across process restarts.
type Storage interface {
	Load() (map[string]string, error)
	Save(values map[string]string) error
}

// Renewer re-establishes a session after the server rejected the current credentials.
type Renewer interface {
	Renew(ctx context.Context) (Renewal, error)
}
