package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-connect/internal/logger"
)

// Invocation outcome labels reported to the metrics sink.
const (
	outcomeOK          = "ok"
	outcomeReauth      = "reauth_required"
	outcomeUnavailable = "unavailable"
	outcomeNoMethod    = "method_not_found"
)

// InvokeOptions configures the invocation engine.
type InvokeOptions struct {
	// MaxRetries bounds refresh-and-retry cycles per invocation. Values
	// below zero are treated as zero.
	MaxRetries int
	// SlowRefreshDelay is waited after refreshing a RefreshIsSlow provider.
	SlowRefreshDelay time.Duration
	// Metrics is optional.
	Metrics driven.Metrics
}

// Invoker executes provider methods against stored connections and
// transparently survives access-token expiry.
type Invoker struct {
	registry    *ProviderRegistry
	resolver    driving.CredentialResolver
	connections driven.ConnectionStore
	cipher      driven.Cipher
	opts        InvokeOptions
	refreshes   singleflight.Group
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
}

// Ensure Invoker implements the interface.
var _ driving.Invoker = (*Invoker)(nil)

// NewInvoker creates an invocation engine.
func NewInvoker(
	registry *ProviderRegistry,
	resolver driving.CredentialResolver,
	connections driven.ConnectionStore,
	cipher driven.Cipher,
	opts InvokeOptions,
) *Invoker {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Invoker{
		registry:    registry,
		resolver:    resolver,
		connections: connections,
		cipher:      cipher,
		opts:        opts,
		sleep:       sleepContext,
		now:         time.Now,
	}
}

// operation runs against a freshly instantiated provider.
type operation func(ctx context.Context, p driven.Provider, call domain.Call) (any, error)

// Invoke runs a named provider method.
func (i *Invoker) Invoke(ctx context.Context, orgID, connectionID, method string, args map[string]any) (any, error) {
	conn, err := i.load(ctx, orgID, connectionID)
	if err != nil {
		return nil, err
	}

	out, err := i.run(ctx, conn, args, func(ctx context.Context, p driven.Provider, call domain.Call) (any, error) {
		handler, ok := p.Methods()[method]
		if !ok {
			return nil, fmt.Errorf("%w: %w: %s.%s", domain.ErrOperationUnavailable, domain.ErrMethodNotFound,
				conn.Provider, method)
		}
		return handler(ctx, call)
	})
	i.observe(conn.Provider, method, err)
	return out, err
}

// load returns an active connection. Connections still in between steps
// can be invoked so the setup step can query the provider.
func (i *Invoker) load(ctx context.Context, orgID, connectionID string) (*domain.Connection, error) {
	conn, err := i.connections.Get(ctx, orgID, connectionID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrConnectionNotFound, connectionID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading connection: %w", err)
	}
	if conn.RefreshNeeded {
		return nil, domain.ErrReauthenticationRequired
	}
	if conn.Status != domain.ConnectionActive {
		return nil, fmt.Errorf("%w: %s", domain.ErrConnectionDisabled, connectionID)
	}
	return conn, nil
}

// run resolves credentials, instantiates the provider and executes op. On
// token expiry it refreshes, persists and retries at most MaxRetries times.
// Errors other than reauthentication and configuration failures are
// logged and reported as domain.ErrOperationUnavailable.
func (i *Invoker) run(ctx context.Context, conn *domain.Connection, args map[string]any, op operation) (any, error) {
	instance, err := i.instance(conn)
	if err != nil {
		logger.Error("decrypting instance details failed", "connection", conn.ID, "error", err)
		return nil, domain.ErrOperationUnavailable
	}

	for attempt := 0; ; attempt++ {
		info, err := i.resolver.Resolve(ctx, conn.OrgID, conn.Provider, driving.ResolveOptions{
			OAuthAppID:       conn.OAuthAppID,
			InstanceURL:      instanceURL(instance),
			AllowEnvFallback: true,
		})
		if err != nil {
			return nil, err
		}

		p, err := i.registry.Instantiate(conn.Provider, info)
		if err != nil {
			return nil, err
		}

		out, err := op(ctx, p, domain.Call{
			AccessToken: conn.AccessToken,
			Args:        args,
			AccountID:   conn.InternalID,
			Connection:  conn,
			Instance:    instance,
		})
		if err == nil {
			return out, nil
		}
		if errors.Is(err, domain.ErrMethodNotFound) {
			return nil, err
		}
		if !errors.Is(err, domain.ErrTokenExpired) {
			logger.Warn("provider call failed", "connection", conn.ID, "provider", conn.Provider, "error", err)
			return nil, domain.ErrOperationUnavailable
		}
		if attempt >= i.opts.MaxRetries {
			logger.Warn("token still expired after refresh", "connection", conn.ID, "attempts", attempt+1)
			return nil, domain.ErrOperationUnavailable
		}

		if conn, err = i.refresh(ctx, conn, p); err != nil {
			return nil, err
		}
		if p.Descriptor().RefreshIsSlow && i.opts.SlowRefreshDelay > 0 {
			if err := i.sleep(ctx, i.opts.SlowRefreshDelay); err != nil {
				return nil, err
			}
		}
	}
}

// refresh exchanges the stored refresh token and persists the result.
// Concurrent refreshes of one connection share a single provider call, and
// a snapshot whose access token was already replaced gets the stored
// connection instead of spending the rotated refresh token again.
// On failure the connection is disabled and ErrReauthenticationRequired returned.
func (i *Invoker) refresh(ctx context.Context, conn *domain.Connection, p driven.Provider) (*domain.Connection, error) {
	v, err, _ := i.refreshes.Do(conn.ID, func() (any, error) {
		current, err := i.connections.Get(ctx, conn.OrgID, conn.ID)
		if err != nil {
			return nil, fmt.Errorf("loading connection: %w", err)
		}
		if current.RefreshNeeded {
			return nil, domain.ErrReauthenticationRequired
		}
		if current.AccessToken != conn.AccessToken {
			logger.Debug("token already refreshed", "connection", conn.ID)
			return current, nil
		}

		var result *domain.AuthResult
		if !current.OneTimeToken && current.RefreshToken != "" {
			result, err = p.RefreshToken(ctx, current.RefreshToken)
		}
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil || result == nil || result.AccessToken == "" {
			logger.Warn("token refresh failed, disabling connection",
				"connection", conn.ID, "provider", conn.Provider, "error", err)
			i.refreshed(conn.Provider, false)
			if derr := i.connections.Disable(ctx, conn.OrgID, conn.ID, true); derr != nil {
				logger.Error("disabling connection failed", "connection", conn.ID, "error", derr)
			}
			return nil, domain.ErrReauthenticationRequired
		}

		if result.RefreshToken == "" {
			result.RefreshToken = current.RefreshToken
		}
		if err := i.connections.UpdateTokens(ctx, conn.OrgID, conn.ID, result.TokenUpdate(i.now())); err != nil {
			return nil, fmt.Errorf("persisting refreshed token: %w", err)
		}
		i.refreshed(conn.Provider, true)
		return i.connections.Get(ctx, conn.OrgID, conn.ID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Connection), nil
}

// RefreshConnection proactively refreshes a connection's token.
func (i *Invoker) RefreshConnection(ctx context.Context, conn *domain.Connection) error {
	info, err := i.resolver.Resolve(ctx, conn.OrgID, conn.Provider, driving.ResolveOptions{
		OAuthAppID:       conn.OAuthAppID,
		AllowEnvFallback: true,
	})
	if err != nil {
		return err
	}
	p, err := i.registry.Instantiate(conn.Provider, info)
	if err != nil {
		return err
	}
	_, err = i.refresh(ctx, conn, p)
	return err
}

// instance decrypts the external instance stored on the connection.
// Custom-field payloads are not instances and yield nil.
func (i *Invoker) instance(conn *domain.Connection) (*domain.ExternalInstance, error) {
	if conn.CustomInstanceDetails == "" {
		return nil, nil
	}
	plain, err := i.cipher.Decrypt(conn.CustomInstanceDetails)
	if err != nil {
		return nil, err
	}
	var ext domain.ExternalInstance
	if err := json.Unmarshal([]byte(plain), &ext); err != nil || ext.URL == "" {
		return nil, nil //nolint:nilerr // custom-field payload
	}
	return &ext, nil
}

func (i *Invoker) observe(provider, method string, err error) {
	if i.opts.Metrics == nil {
		return
	}
	outcome := outcomeOK
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrReauthenticationRequired):
		outcome = outcomeReauth
	case errors.Is(err, domain.ErrMethodNotFound):
		outcome = outcomeNoMethod
	default:
		outcome = outcomeUnavailable
	}
	i.opts.Metrics.InvocationCompleted(provider, method, outcome)
}

func (i *Invoker) refreshed(provider string, ok bool) {
	if i.opts.Metrics != nil {
		i.opts.Metrics.TokenRefreshed(provider, ok)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
