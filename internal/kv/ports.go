package kv

import "context"

// Store is the persistent key-value port used for user preferences.
// Missing keys report ok=false with a nil error.
type Store interface {
	GetString(ctx context.Context, key string) (value string, ok bool, err error)
	SetString(ctx context.Context, key, value string) error
	GetStrings(ctx context.Context, key string) (values []string, ok bool, err error)
	SetStrings(ctx context.Context, key string, values []string) error
}
