// Package registry implements the Integration Registry: the exclusive
// owner of Integration records and the integrationId -> Adapter
// mapping. It proxies adapter lifecycle calls behind a registry of
// constructed vendor drivers, the same way a reverse proxy holds a
// registry of base URLs for sibling services.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iff-guardian/fusion/internal/adapter"
	"github.com/iff-guardian/fusion/internal/domain"
	fusionerrors "github.com/iff-guardian/fusion/internal/errors"
	"github.com/iff-guardian/fusion/internal/eventbus"
	"github.com/iff-guardian/fusion/internal/vault"
	"github.com/iff-guardian/fusion/pkg/database"
	"github.com/iff-guardian/fusion/pkg/logger"
)

// Factory constructs a concrete adapter for one integration. in
// carries the decrypted connection config (Credentials populated with
// plaintext secrets for the duration of the call only).
type Factory func(integrationID string, in *domain.Integration) (adapter.Adapter, error)

// Scheduler is the subset of *orchestrator.Orchestrator the registry
// drives to keep an integration's sync cadence in lockstep with its
// lifecycle. Kept as an interface here so the registry can be tested
// against a fake without constructing a real orchestrator.
type Scheduler interface {
	Schedule(ctx context.Context, integrationID string, intervalMinutes int)
	Unschedule(integrationID string)
}

type factoryKey struct {
	toolType domain.ToolType
	platform string
}

// Registry owns every Integration row and its live adapter.
type Registry struct {
	repo   *database.Repository
	vault  *vault.Vault
	bus    *eventbus.Bus
	log    logger.Logger

	factoriesMu sync.RWMutex
	factories   map[factoryKey]Factory

	mu       sync.RWMutex
	adapters map[string]adapter.Adapter
	pumps    map[string]context.CancelFunc

	schedulerMu sync.RWMutex
	scheduler   Scheduler
	schedCtx    context.Context
}

// New builds an empty Registry.
func New(repo *database.Repository, v *vault.Vault, bus *eventbus.Bus, log logger.Logger) *Registry {
	return &Registry{
		repo:      repo,
		vault:     v,
		bus:       bus,
		log:       log,
		factories: make(map[factoryKey]Factory),
		adapters:  make(map[string]adapter.Adapter),
		pumps:     make(map[string]context.CancelFunc),
	}
}

// SetScheduler wires the registry to the sync orchestrator so that
// integrations created, updated, or deleted after process boot get
// their cadence scheduled or cancelled immediately instead of waiting
// for the next restart's boot-time scan. ctx bounds the lifetime of
// every schedule registered through it, so it should be the same
// cancellable context the orchestrator's own boot-time schedules run
// under, not a short-lived request context.
func (r *Registry) SetScheduler(ctx context.Context, s Scheduler) {
	r.schedulerMu.Lock()
	defer r.schedulerMu.Unlock()
	r.scheduler = s
	r.schedCtx = ctx
}

// reconcileSchedule starts or cancels in's sync cadence depending on
// its sync policy. A no-op until SetScheduler has been called, e.g.
// for integrations seeded at boot, which the lifecycle coordinator
// schedules directly.
func (r *Registry) reconcileSchedule(in *domain.Integration) {
	r.schedulerMu.RLock()
	s, ctx := r.scheduler, r.schedCtx
	r.schedulerMu.RUnlock()
	if s == nil {
		return
	}
	if in.SyncPolicy.Enabled && in.SyncPolicy.Direction != domain.SyncDirectionOutbound {
		s.Schedule(ctx, in.ID, in.SyncPolicy.IntervalMinutes)
	} else {
		s.Unschedule(in.ID)
	}
}

// RegisterFactory binds a vendor driver constructor to a (toolType,
// platform) pair. Call once per supported pair at startup.
func (r *Registry) RegisterFactory(toolType domain.ToolType, platform string, f Factory) {
	r.factoriesMu.Lock()
	defer r.factoriesMu.Unlock()
	r.factories[factoryKey{toolType, platform}] = f
}

func (r *Registry) factoryFor(toolType domain.ToolType, platform string) (Factory, error) {
	r.factoriesMu.RLock()
	defer r.factoriesMu.RUnlock()
	f, ok := r.factories[factoryKey{toolType, platform}]
	if !ok {
		return nil, &adapter.UnsupportedIntegrationError{ToolType: toolType, Platform: platform}
	}
	return f, nil
}

// CreateIntegration validates, encrypts credentials, persists the row,
// and constructs+connects the adapter.
func (r *Registry) CreateIntegration(ctx context.Context, in *domain.Integration) error {
	if err := validate(in); err != nil {
		return err
	}
	if !domain.IsSupportedPlatform(in.Type, in.Platform) {
		return fusionerrors.New(fusionerrors.KindUnsupportedPlatform, fmt.Sprintf("platform %q not supported for %s", in.Platform, in.Type))
	}

	factory, err := r.factoryFor(in.Type, in.Platform)
	if err != nil {
		return err
	}

	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	now := time.Now()
	in.CreatedAt, in.UpdatedAt = now, now
	in.Status = domain.IntegrationStatusConfiguring
	in.Version = 1

	plaintext := in.ConnectionConfig.Credentials
	encrypted, err := r.sealCredentials(plaintext)
	if err != nil {
		return err
	}
	in.ConnectionConfig.Credentials = encrypted

	if err := r.repo.CreateIntegration(ctx, in); err != nil {
		return fusionerrors.Wrap(fusionerrors.KindDatabaseError, "create integration", err)
	}

	decrypted := *in
	decrypted.ConnectionConfig.Credentials = plaintext

	a, err := factory(in.ID, &decrypted)
	if err != nil {
		return err
	}

	if err := a.Connect(ctx); err != nil {
		_ = r.repo.UpdateIntegrationStatus(ctx, in.ID, domain.IntegrationStatusError, nil)
		return err
	}

	r.mu.Lock()
	r.adapters[in.ID] = a
	pumpCtx, cancel := context.WithCancel(context.Background())
	r.pumps[in.ID] = cancel
	r.mu.Unlock()

	go r.bus.Pump(pumpCtx, a.Events())

	connectedAt := time.Now()
	if err := r.repo.UpdateIntegrationStatus(ctx, in.ID, domain.IntegrationStatusConnected, &connectedAt); err != nil {
		return err
	}

	r.reconcileSchedule(in)
	return nil
}

// GetAdapter returns the live adapter for id, lazily reconstructing it
// from the persisted row if the process has no in-memory instance yet
// (e.g. right after restart) instead of eagerly reconnecting every
// integration at boot.
func (r *Registry) GetAdapter(ctx context.Context, id string) (adapter.Adapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[id]
	r.mu.RUnlock()
	if ok {
		return a, nil
	}

	in, err := r.repo.GetIntegration(ctx, id)
	if err != nil {
		return nil, fusionerrors.Wrap(fusionerrors.KindNotFound, "get integration", err)
	}

	factory, err := r.factoryFor(in.Type, in.Platform)
	if err != nil {
		return nil, err
	}

	plaintext, err := r.openCredentials(in.ConnectionConfig.Credentials)
	if err != nil {
		return nil, err
	}
	in.ConnectionConfig.Credentials = plaintext

	a, err = factory(in.ID, in)
	if err != nil {
		return nil, err
	}
	if err := a.Connect(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.adapters[id] = a
	pumpCtx, cancel := context.WithCancel(context.Background())
	r.pumps[id] = cancel
	r.mu.Unlock()
	go r.bus.Pump(pumpCtx, a.Events())

	return a, nil
}

// UpdateIntegration replaces the adapter atomically when
// connectionConfig changed: no other caller may observe a
// half-swapped mapping, so the write lock is held for the duration of
// the old adapter's disconnect and the new adapter's connect.
func (r *Registry) UpdateIntegration(ctx context.Context, in *domain.Integration, connectionChanged bool) error {
	if !connectionChanged {
		in.UpdatedAt = time.Now()
		r.reconcileSchedule(in)
		return nil
	}

	factory, err := r.factoryFor(in.Type, in.Platform)
	if err != nil {
		return err
	}

	plaintext := in.ConnectionConfig.Credentials
	decrypted := *in
	decrypted.ConnectionConfig.Credentials = plaintext

	newAdapter, err := factory(in.ID, &decrypted)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.adapters[in.ID]; ok {
		_ = old.Disconnect(ctx)
	}
	if cancel, ok := r.pumps[in.ID]; ok {
		cancel()
	}

	if err := newAdapter.Connect(ctx); err != nil {
		return err
	}

	r.adapters[in.ID] = newAdapter
	pumpCtx, cancel := context.WithCancel(context.Background())
	r.pumps[in.ID] = cancel
	go r.bus.Pump(pumpCtx, newAdapter.Events())

	r.reconcileSchedule(in)
	return nil
}

// DeleteIntegration cancels the integration's sync schedule,
// disconnects the adapter, removes it from the in-memory mapping, and
// deletes the persisted row.
func (r *Registry) DeleteIntegration(ctx context.Context, id string) error {
	r.schedulerMu.RLock()
	s := r.scheduler
	r.schedulerMu.RUnlock()
	if s != nil {
		s.Unschedule(id)
	}

	r.mu.Lock()
	if a, ok := r.adapters[id]; ok {
		_ = a.Disconnect(ctx)
		delete(r.adapters, id)
	}
	if cancel, ok := r.pumps[id]; ok {
		cancel()
		delete(r.pumps, id)
	}
	r.mu.Unlock()

	return r.repo.DeleteIntegration(ctx, id)
}

// Shutdown disconnects every live adapter and stops its event pump.
// Called once during process shutdown, after the sync orchestrator has
// drained, so no adapter is mid-Sync when Disconnect runs.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, a := range r.adapters {
		if err := a.Disconnect(ctx); err != nil {
			r.log.Warn("adapter disconnect failed during shutdown", "integrationId", id, "error", err)
		}
	}
	for _, cancel := range r.pumps {
		cancel()
	}
	r.adapters = make(map[string]adapter.Adapter)
	r.pumps = make(map[string]context.CancelFunc)
}

// TestConnection runs an ephemeral connectivity check against in
// without persisting anything or touching the in-memory adapter map.
func (r *Registry) TestConnection(ctx context.Context, in *domain.Integration) bool {
	factory, err := r.factoryFor(in.Type, in.Platform)
	if err != nil {
		return false
	}
	a, err := factory(uuid.NewString(), in)
	if err != nil {
		return false
	}
	return a.TestConnection(ctx)
}

func (r *Registry) sealCredentials(plaintext map[string]string) (map[string]string, error) {
	blob, err := r.vault.Encrypt(plaintext)
	if err != nil {
		return nil, fusionerrors.Wrap(fusionerrors.KindIntegrationError, "encrypt credentials", err)
	}
	return map[string]string{"vaultBlob": blob}, nil
}

func (r *Registry) openCredentials(sealed map[string]string) (map[string]string, error) {
	blob, ok := sealed["vaultBlob"]
	if !ok {
		return nil, fusionerrors.New(fusionerrors.KindIntegrationError, "credentials blob missing")
	}
	plaintext, err := r.vault.Decrypt(blob)
	if err != nil {
		return nil, fusionerrors.Wrap(fusionerrors.KindIntegrationError, "decrypt credentials", err)
	}
	return plaintext, nil
}

func validate(in *domain.Integration) error {
	if in.Name == "" {
		return fusionerrors.New(fusionerrors.KindValidation, "name is required")
	}
	if in.Type == "" {
		return fusionerrors.New(fusionerrors.KindValidation, "type is required")
	}
	if in.Platform == "" {
		return fusionerrors.New(fusionerrors.KindValidation, "platform is required")
	}
	if in.ConnectionConfig.Endpoint == "" {
		return fusionerrors.New(fusionerrors.KindValidation, "connectionConfig.endpoint is required")
	}
	if in.ConnectionConfig.AuthType == "" {
		return fusionerrors.New(fusionerrors.KindValidation, "connectionConfig.authType is required")
	}
	if len(in.ConnectionConfig.Credentials) == 0 {
		return fusionerrors.New(fusionerrors.KindValidation, "credentials are required for the configured authType")
	}
	return nil
}
