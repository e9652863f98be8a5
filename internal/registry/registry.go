// Package registry caches the command catalog: which commands exist, where
// they route, and which tenant modules they require. The catalog is rebuilt
// wholesale on a timer; readers always see one consistent snapshot.
package registry

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	domain "stayhub/internal/domain/registry"
	"stayhub/internal/repository"
	"stayhub/pkg/logger"
)

type ResolutionStatus string

const (
	StatusResolved         ResolutionStatus = "RESOLVED"
	StatusUnknownCommand   ResolutionStatus = "UNKNOWN_COMMAND"
	StatusModuleNotEnabled ResolutionStatus = "MODULE_NOT_ENABLED"
)

// Membership carries the tenant's module claims as they arrive from the
// outside world. The list is untrusted input: entries may be non-strings or
// unknown garbage and are normalized, never trusted for shape.
type Membership struct {
	Modules []any
}

type ResolveRequest struct {
	CommandName string
	TenantID    string
	Membership  Membership
}

type Resolution struct {
	Status        ResolutionStatus
	TargetService string
	Topic         string
	AggregateType string
	MissingModule string
}

// Snapshot is an immutable-per-refresh view of the catalog.
type Snapshot struct {
	Templates map[string]domain.CommandTemplate
	Routes    map[string]map[string]domain.RouteOverride
	Features  map[string]map[string]bool
	LoadedAt  time.Time
}

// Registry holds the latest snapshot behind an atomically swapped pointer, so
// lookups never block on a refresh in progress. A failed reload keeps serving
// the last-good snapshot.
type Registry struct {
	repo     repository.RegistryRepository
	refresh  time.Duration
	log      *logger.Logger
	snapshot atomic.Pointer[Snapshot]
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func New(repo repository.RegistryRepository, refresh time.Duration, log *logger.Logger) *Registry {
	return &Registry{
		repo:    repo,
		refresh: refresh,
		log:     log,
	}
}

// Start performs the initial load and schedules periodic refreshes.
func (r *Registry) Start(ctx context.Context) error {
	if err := r.reload(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.reload(ctx); err != nil && r.log != nil {
					r.log.Warnf("registry refresh failed, keeping last snapshot: %s", err.Error())
				}
			}
		}
	}()
	return nil
}

// Shutdown cancels the refresh timer and waits for it to stop.
func (r *Registry) Shutdown() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Registry) reload(ctx context.Context) error {
	templates, err := r.repo.ListTemplates(ctx)
	if err != nil {
		return err
	}
	routes, err := r.repo.ListRoutes(ctx)
	if err != nil {
		return err
	}
	features, err := r.repo.ListFeatures(ctx)
	if err != nil {
		return err
	}

	snap := &Snapshot{
		Templates: make(map[string]domain.CommandTemplate, len(templates)),
		Routes:    make(map[string]map[string]domain.RouteOverride),
		Features:  make(map[string]map[string]bool),
		LoadedAt:  time.Now().UTC(),
	}
	for _, tpl := range templates {
		snap.Templates[tpl.CommandName] = tpl
	}
	for _, route := range routes {
		byCommand := snap.Routes[route.TenantID]
		if byCommand == nil {
			byCommand = make(map[string]domain.RouteOverride)
			snap.Routes[route.TenantID] = byCommand
		}
		byCommand[route.CommandName] = route
	}
	for _, flag := range features {
		byModule := snap.Features[flag.TenantID]
		if byModule == nil {
			byModule = make(map[string]bool)
			snap.Features[flag.TenantID] = byModule
		}
		byModule[flag.Module] = flag.Enabled
	}

	r.snapshot.Store(snap)
	return nil
}

// Snapshot returns the current catalog view, or nil before the first load.
func (r *Registry) Snapshot() *Snapshot {
	return r.snapshot.Load()
}

// ResolveCommandForTenant looks up the command template, applies tenant route
// overrides and verifies required modules against the tenant's membership
// and feature flags.
func (r *Registry) ResolveCommandForTenant(req ResolveRequest) Resolution {
	snap := r.snapshot.Load()
	if snap == nil {
		return Resolution{Status: StatusUnknownCommand}
	}

	tpl, ok := snap.Templates[req.CommandName]
	if !ok {
		return Resolution{Status: StatusUnknownCommand}
	}

	enabled := NormalizeModules(req.Membership.Modules)
	flags := snap.Features[req.TenantID]
	for _, required := range tpl.RequiredModules {
		if _, ok := enabled[required]; ok {
			continue
		}
		if flags[required] {
			continue
		}
		return Resolution{Status: StatusModuleNotEnabled, MissingModule: required}
	}

	resolution := Resolution{
		Status:        StatusResolved,
		TargetService: tpl.TargetService,
		Topic:         tpl.Topic,
		AggregateType: tpl.AggregateType,
	}
	if override, ok := snap.Routes[req.TenantID][req.CommandName]; ok {
		if override.TargetService != "" {
			resolution.TargetService = override.TargetService
		}
		if override.Topic != "" {
			resolution.Topic = override.Topic
		}
	}
	return resolution
}

// NormalizeModules reduces an untrusted module list to a set of clean string
// tags; non-string and blank entries are discarded.
func NormalizeModules(modules []any) map[string]struct{} {
	set := make(map[string]struct{}, len(modules))
	for _, entry := range modules {
		tag, ok := entry.(string)
		if !ok {
			continue
		}
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		set[tag] = struct{}{}
	}
	return set
}
