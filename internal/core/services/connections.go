package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driving"
)

// Ensure the services implement the interfaces.
var (
	_ driving.ConnectionService = (*ConnectionService)(nil)
	_ driving.ScheduleService   = (*ScheduleService)(nil)
)

// ConnectionService manages connections after the connect flow.
type ConnectionService struct {
	store    driven.ConnectionStore
	registry *ProviderRegistry
	invoker  *Invoker
}

// NewConnectionService creates a new connection service. Remote profile
// changes run through the invoker so they survive token expiry.
func NewConnectionService(store driven.ConnectionStore, registry *ProviderRegistry, invoker *Invoker) *ConnectionService {
	return &ConnectionService{
		store:    store,
		registry: registry,
		invoker:  invoker,
	}
}

// List returns the organization's connections.
func (s *ConnectionService) List(ctx context.Context, orgID string) ([]domain.Connection, error) {
	return s.store.List(ctx, orgID)
}

// Get returns a connection.
func (s *ConnectionService) Get(ctx context.Context, orgID, id string) (*domain.Connection, error) {
	conn, err := s.store.Get(ctx, orgID, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrConnectionNotFound, id)
	}
	return conn, err
}

// Disable soft-disables the connection.
func (s *ConnectionService) Disable(ctx context.Context, orgID, id string) error {
	if _, err := s.Get(ctx, orgID, id); err != nil {
		return err
	}
	return s.store.Disable(ctx, orgID, id, false)
}

// Enable re-activates a disabled connection.
func (s *ConnectionService) Enable(ctx context.Context, orgID, id string) error {
	if _, err := s.Get(ctx, orgID, id); err != nil {
		return err
	}
	return s.store.Enable(ctx, orgID, id)
}

// Delete soft-deletes the connection. Scheduled invocations keep their reference.
func (s *ConnectionService) Delete(ctx context.Context, orgID, id string) error {
	if _, err := s.Get(ctx, orgID, id); err != nil {
		return err
	}
	return s.store.SoftDelete(ctx, orgID, id)
}

// Purge physically removes the connection and its scheduled invocations.
func (s *ConnectionService) Purge(ctx context.Context, orgID, id string) error {
	return s.store.Delete(ctx, orgID, id)
}

// ChangeNickname renames the account, remotely when the provider supports it.
func (s *ConnectionService) ChangeNickname(ctx context.Context, orgID, id, name string) (*domain.Connection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}

	conn, err := s.invoker.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	desc, err := s.registry.Describe(conn.Provider)
	if err != nil {
		return nil, err
	}

	if desc.SupportsNicknameChange {
		out, err := s.invoker.run(ctx, conn, nil, func(ctx context.Context, p driven.Provider, call domain.Call) (any, error) {
			nc, ok := p.(driven.NicknameChanger)
			if !ok {
				return nil, fmt.Errorf("%w: nickname", domain.ErrCapabilityUnsupported)
			}
			return nc.ChangeNickname(ctx, call, name)
		})
		if err != nil {
			return nil, err
		}
		if remote, _ := out.(string); remote != "" {
			name = remote
		}
	}

	if err := s.store.UpdateProfile(ctx, orgID, id, name, conn.Picture); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, orgID, id)
}

// ChangePicture replaces the account picture, remotely when the provider supports it.
func (s *ConnectionService) ChangePicture(
	ctx context.Context,
	orgID, id, pictureURL string,
) (*domain.Connection, error) {
	pictureURL = strings.TrimSpace(pictureURL)
	if pictureURL == "" {
		return nil, fmt.Errorf("%w: picture url is required", domain.ErrInvalidInput)
	}

	conn, err := s.invoker.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	desc, err := s.registry.Describe(conn.Provider)
	if err != nil {
		return nil, err
	}

	if desc.SupportsPictureChange {
		out, err := s.invoker.run(ctx, conn, nil, func(ctx context.Context, p driven.Provider, call domain.Call) (any, error) {
			pc, ok := p.(driven.PictureChanger)
			if !ok {
				return nil, fmt.Errorf("%w: picture", domain.ErrCapabilityUnsupported)
			}
			return pc.ChangePicture(ctx, call, pictureURL)
		})
		if err != nil {
			return nil, err
		}
		if remote, _ := out.(string); remote != "" {
			pictureURL = remote
		}
	}

	if err := s.store.UpdateProfile(ctx, orgID, id, conn.Name, pictureURL); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, orgID, id)
}

// UpdateSettings replaces the provider-specific settings.
func (s *ConnectionService) UpdateSettings(ctx context.Context, orgID, id string, settings map[string]any) error {
	if _, err := s.Get(ctx, orgID, id); err != nil {
		return err
	}
	return s.store.UpdateSettings(ctx, orgID, id, settings)
}

// CompleteSetup marks a connection created in between steps as usable.
func (s *ConnectionService) CompleteSetup(ctx context.Context, orgID, id string) error {
	conn, err := s.Get(ctx, orgID, id)
	if err != nil {
		return err
	}
	if !conn.InBetweenSteps {
		return nil
	}
	return s.store.CompleteSetup(ctx, orgID, id)
}

// ScheduleService queues provider calls for the scheduler to dispatch.
type ScheduleService struct {
	store       driven.ScheduledInvocationStore
	connections driven.ConnectionStore
	registry    *ProviderRegistry
	now         func() time.Time
}

// NewScheduleService creates a new schedule service.
func NewScheduleService(
	store driven.ScheduledInvocationStore,
	connections driven.ConnectionStore,
	registry *ProviderRegistry,
) *ScheduleService {
	return &ScheduleService{
		store:       store,
		connections: connections,
		registry:    registry,
		now:         time.Now,
	}
}

// Schedule validates the target method and stores a pending invocation.
func (s *ScheduleService) Schedule(
	ctx context.Context,
	orgID, connectionID, method string,
	args map[string]any,
	runAt time.Time,
) (*domain.ScheduledInvocation, error) {
	conn, err := s.connections.Get(ctx, orgID, connectionID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrConnectionNotFound, connectionID)
	}
	if err != nil {
		return nil, err
	}

	methods, err := s.registry.Methods(conn.Provider)
	if err != nil {
		return nil, err
	}
	known := false
	for _, m := range methods {
		if m.Name == method {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("%w: %s.%s", domain.ErrMethodNotFound, conn.Provider, method)
	}

	now := s.now()
	if runAt.IsZero() {
		runAt = now
	}
	inv := &domain.ScheduledInvocation{
		ID:           uuid.New().String(),
		OrgID:        orgID,
		ConnectionID: connectionID,
		Method:       method,
		Args:         args,
		RunAt:        runAt,
		Status:       domain.InvocationPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Save(ctx, inv); err != nil {
		return nil, fmt.Errorf("saving scheduled invocation: %w", err)
	}
	return inv, nil
}

// List returns the organization's scheduled invocations.
func (s *ScheduleService) List(ctx context.Context, orgID string) ([]domain.ScheduledInvocation, error) {
	return s.store.List(ctx, orgID)
}
