package driving

import "context"

// Invoker executes provider methods against stored connections.
type Invoker interface {
	// Invoke runs a method with refresh-and-retry on token expiry.
	// Failures are reported as domain.ErrOperationUnavailable, except
	// domain.ErrReauthenticationRequired which stays distinguishable.
	Invoke(ctx context.Context, orgID, connectionID, method string, args map[string]any) (any, error)
}
