// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tomtom215/modvote/internal/logging"
	"github.com/tomtom215/modvote/internal/protocol"
)

var (
	// ErrProviderOwned is returned when a provider id is already registered
	// by another live session.
	ErrProviderOwned = errors.New("provider id is owned by another session")

	// ErrNotConnected is returned for a provider without a live session.
	ErrNotConnected = errors.New("provider not connected")

	// ErrNotInitialized is returned for a modification the provider has not
	// reported as initialized.
	ErrNotInitialized = errors.New("modification not initialized")

	// ErrNotPersisted is returned for a modification without a stored record.
	ErrNotPersisted = errors.New("modification not persisted")
)

// Registry owns persisted providers, global settings and live provider
// state. It is safe for concurrent use.
type Registry struct {
	store *Store

	mu        sync.RWMutex
	providers map[string]*PersistedProvider
	settings  GlobalSettings
	live      map[string]*ProviderState
	bySession map[uint64]string
}

// New loads providers and settings from store. defaultEbsURL is used when
// the stored settings carry none.
func New(store *Store, defaultEbsURL string) (*Registry, error) {
	r := &Registry{
		store:     store,
		providers: make(map[string]*PersistedProvider),
		live:      make(map[string]*ProviderState),
		bySession: make(map[uint64]string),
	}

	providers, err := store.LoadProviders()
	if err != nil {
		return nil, err
	}
	for _, p := range providers {
		if p.Options == nil {
			p.Options = make(map[string]StoredOption)
		}
		if p.Modifications == nil {
			p.Modifications = make(map[string]*PersistedModification)
		}
		r.providers[p.ID] = p
	}

	settings, found, err := store.LoadSettings()
	if err != nil {
		return nil, err
	}
	if !found {
		settings = DefaultGlobalSettings(defaultEbsURL)
	}
	settings.PollSettings.Normalize()
	if settings.PollSettings.EbsURL == "" {
		settings.PollSettings.EbsURL = defaultEbsURL
	}
	r.settings = settings
	if err := store.SaveSettings(settings); err != nil {
		return nil, err
	}

	logging.Info().
		Int("providers", len(r.providers)).
		Bool("fresh_settings", !found).
		Msg("Registry loaded")
	return r, nil
}

// Settings returns a copy of the global settings.
func (r *Registry) Settings() GlobalSettings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// SetConfigData builds the viewer-facing settings.
func (r *Registry) SetConfigData() protocol.SetConfigData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return protocol.SetConfigData{
		InterfaceSettings: r.settings.InterfaceSettings,
		Mode:              r.settings.PollSettings.Mode,
		Participants:      r.settings.PollSettings.Participants,
	}
}

// Attach binds a provider id to a session and stores its registration.
// Re-registering from the same session replaces the registration.
func (r *Registry) Attach(sessionID uint64, reg protocol.ClientRegister) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.live[reg.ID]; ok {
		if state.SessionID != sessionID {
			return fmt.Errorf("%w: %s", ErrProviderOwned, reg.ID)
		}
		state.Registration = reg
		return nil
	}

	// A session re-registering under a new id gives up its old one.
	if old, ok := r.bySession[sessionID]; ok {
		delete(r.live, old)
	}
	r.live[reg.ID] = newProviderState(sessionID, reg)
	r.bySession[sessionID] = reg.ID
	return nil
}

// Detach drops the live state owned by sessionID.
func (r *Registry) Detach(sessionID uint64) (providerID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	providerID, ok = r.bySession[sessionID]
	if !ok {
		return "", false
	}
	delete(r.bySession, sessionID)
	delete(r.live, providerID)
	return providerID, true
}

// ProviderForSession returns the provider id owned by sessionID.
func (r *Registry) ProviderForSession(sessionID uint64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySession[sessionID]
	return id, ok
}

// SessionForProvider returns the session owning providerID.
func (r *Registry) SessionForProvider(providerID string) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.live[providerID]
	if !ok {
		return 0, false
	}
	return state.SessionID, true
}

// SetInitialized replaces the initialized set of a connected provider.
func (r *Registry) SetInitialized(providerID string, names []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.live[providerID]
	if !ok {
		return false
	}
	state.Initialized = make(map[string]struct{}, len(names))
	for _, n := range names {
		state.Initialized[n] = struct{}{}
	}
	return true
}

// ClearInitialized empties the initialized set of a connected provider.
func (r *Registry) ClearInitialized(providerID string) {
	r.SetInitialized(providerID, nil)
}

// MarkRunning records a started modification. It reports false when the
// modification is not initialized or already running.
func (r *Registry) MarkRunning(providerID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.live[providerID]
	if !ok {
		return false
	}
	if _, ok := state.Initialized[name]; !ok {
		return false
	}
	if _, ok := state.Running[name]; ok {
		return false
	}
	state.Running[name] = struct{}{}
	return true
}

// MarkStopped removes names from the running set and returns the public
// ids of those actually removed.
func (r *Registry) MarkStopped(providerID string, names []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.live[providerID]
	if !ok {
		return nil
	}
	var removed []string
	for _, n := range names {
		if _, ok := state.Running[n]; ok {
			delete(state.Running, n)
			removed = append(removed, PublicID(providerID, n))
		}
	}
	return removed
}

// Target is a resolved, runnable modification.
type Target struct {
	ProviderID   string
	Name         string
	SessionID    uint64
	Running      bool
	Modification PersistedModification
}

// Lookup resolves a public id against live and persisted state. The
// provider must be connected, the modification initialized and persisted.
func (r *Registry) Lookup(publicID string) (Target, error) {
	providerID, name, err := ParsePublicID(publicID)
	if err != nil {
		return Target{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.live[providerID]
	if !ok {
		return Target{}, fmt.Errorf("%w: %s", ErrNotConnected, providerID)
	}
	if _, ok := state.Initialized[name]; !ok {
		return Target{}, fmt.Errorf("%w: %s", ErrNotInitialized, publicID)
	}
	p, ok := r.providers[providerID]
	if !ok {
		return Target{}, fmt.Errorf("%w: %s", ErrNotPersisted, publicID)
	}
	mod, ok := p.Modifications[name]
	if !ok {
		return Target{}, fmt.Errorf("%w: %s", ErrNotPersisted, publicID)
	}

	_, running := state.Running[name]
	return Target{
		ProviderID:   providerID,
		Name:         name,
		SessionID:    state.SessionID,
		Running:      running,
		Modification: *mod,
	}, nil
}

// liveIDs returns connected provider ids in sorted order. Callers hold mu.
func (r *Registry) liveIDs() []string {
	ids := make([]string, 0, len(r.live))
	for id := range r.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EffectiveModifications lists every modification of a connected provider
// that is both initialized and persisted.
func (r *Registry) EffectiveModifications() []protocol.ModificationInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mods := []protocol.ModificationInfo{}
	for _, providerID := range r.liveIDs() {
		state := r.live[providerID]
		p, ok := r.providers[providerID]
		if !ok {
			continue
		}
		for _, decl := range state.Registration.Modifications {
			if _, ok := state.Initialized[decl.Name]; !ok {
				continue
			}
			mod, ok := p.Modifications[decl.Name]
			if !ok {
				continue
			}
			_, running := state.Running[decl.Name]
			mods = append(mods, protocol.ModificationInfo{
				Description: mod.EffectiveDescription(),
				Enabled:     mod.Enabled,
				ID:          PublicID(providerID, decl.Name),
				Logo:        decl.Icon,
				MaxLength:   mod.CustomMax,
				MinLength:   mod.CustomMin,
				Running:     running,
				Tooltip:     mod.EffectiveTooltip(),
			})
		}
	}
	return mods
}

// ConfigAvailable builds the configuration snapshot for connected providers.
func (r *Registry) ConfigAvailable(channel *protocol.Channel) protocol.ConfigAvailable {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := []protocol.ConfigAvailableClient{}
	for _, providerID := range r.liveIDs() {
		p, ok := r.providers[providerID]
		if !ok {
			continue
		}
		clients = append(clients, configClient(p, r.live[providerID].Registration))
	}

	return protocol.ConfigAvailable{
		Channel:           channel,
		Clients:           clients,
		InterfaceSettings: r.settings.InterfaceSettings,
		PollSettings:      r.settings.PollSettings,
	}
}

func configClient(p *PersistedProvider, reg protocol.ClientRegister) protocol.ConfigAvailableClient {
	client := protocol.ConfigAvailableClient{
		Icon:          reg.Icon,
		ID:            p.ID,
		Modifications: []protocol.ConfigAvailableModification{},
		Options:       clientOptions(reg.Options, p.Options),
	}

	for _, decl := range reg.Modifications {
		mod, ok := p.Modifications[decl.Name]
		if !ok {
			continue
		}
		client.Modifications = append(client.Modifications, protocol.ConfigAvailableModification{
			CustomDescription: mod.CustomDescription,
			CustomMaxLength:   mod.CustomMax,
			CustomMinLength:   mod.CustomMin,
			Description:       decl.Description,
			Enabled:           mod.Enabled,
			Icon:              decl.Icon,
			MaxLength:         declaredCap(decl.MaxLength),
			Name:              decl.Name,
			Options:           clientOptions(decl.Options, mod.Options),
			Tooltip:           mod.EffectiveTooltip(),
		})
	}
	return client
}

func clientOptions(declared []protocol.RegisterOption, stored map[string]StoredOption) []protocol.ClientOption {
	opts := []protocol.ClientOption{}
	for _, o := range declared {
		value := o.Default
		if s, ok := stored[o.ID]; ok {
			value = s.Value
		}
		opts = append(opts, protocol.ClientOption{
			ID:          o.ID,
			Description: o.Description,
			Default:     o.Default,
			NumType:     o.NumType,
			ValidValues: o.ValidValues,
			Value:       value,
		})
	}
	return opts
}

// InitializeMessage builds the Client.Initialize for a connected provider.
func (r *Registry) InitializeMessage(providerID string) (protocol.ClientInitialize, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.live[providerID]
	if !ok {
		return protocol.ClientInitialize{}, false
	}
	p, ok := r.providers[providerID]
	if !ok {
		return protocol.ClientInitialize{}, false
	}

	msg := protocol.ClientInitialize{
		Modifications: []protocol.InitializeModification{},
		Options:       optionValues(p.Options),
	}
	for _, decl := range state.Registration.Modifications {
		mod, ok := p.Modifications[decl.Name]
		if !ok {
			continue
		}
		msg.Modifications = append(msg.Modifications, protocol.InitializeModification{
			Name:    decl.Name,
			Options: optionValues(mod.Options),
		})
	}
	return msg, true
}

func optionValues(stored map[string]StoredOption) map[string]interface{} {
	values := make(map[string]interface{}, len(stored))
	for id, o := range stored {
		values[id] = o.Value
	}
	return values
}

// Provider returns a copy of a persisted provider record.
func (r *Registry) Provider(providerID string) (PersistedProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[providerID]
	if !ok {
		return PersistedProvider{}, false
	}
	cp := *p
	cp.Modifications = make(map[string]*PersistedModification, len(p.Modifications))
	for name, m := range p.Modifications {
		mc := *m
		cp.Modifications[name] = &mc
	}
	return cp, true
}

// Close closes the underlying store.
func (r *Registry) Close() error {
	return r.store.Close()
}
