package driven

import (
	"context"
	"time"
)

// EphemeralStore is a shared TTL keyed store used to correlate the
// authorize and callback halves of the connect flow.
type EphemeralStore interface {
	// Set stores value under key for ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Take reads and deletes key atomically. ok is false when the key is
	// missing or expired.
	Take(ctx context.Context, key string) (value string, ok bool, err error)
}

// Cipher encrypts secrets at rest with a reversible symmetric scheme.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Metrics receives invocation outcomes. Optional: services accept nil.
type Metrics interface {
	// InvocationCompleted records an invocation outcome label.
	InvocationCompleted(provider, method, outcome string)
	// TokenRefreshed records a refresh attempt.
	TokenRefreshed(provider string, ok bool)
}
