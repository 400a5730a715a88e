// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package registry

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/goccy/go-json"

	"github.com/tomtom215/modvote/internal/logging"
	"github.com/tomtom215/modvote/internal/protocol"
	"github.com/tomtom215/modvote/internal/validation"
)

// ErrInvalidPatch is returned when a Config.Change carries settings that do
// not decode or validate. Nothing is applied in that case.
var ErrInvalidPatch = errors.New("invalid configuration patch")

// UpsertFromRegistration creates or updates the stored record of a provider
// from its registration and persists it.
//
// New modifications start disabled at [0, min(declared or 120, 120)] with
// default options. Existing ones keep their customisations clamped into the
// declared range. Modifications no longer declared are dropped.
func (r *Registry) UpsertFromRegistration(reg protocol.ClientRegister) (PersistedProvider, error) {
	r.mu.Lock()
	p, ok := r.providers[reg.ID]
	if !ok {
		p = &PersistedProvider{ID: reg.ID}
		r.providers[reg.ID] = p
	}

	p.Icon = reg.Icon
	p.Options = mergeDeclaredOptions(reg.Options, p.Options)

	mods := make(map[string]*PersistedModification, len(reg.Modifications))
	for _, decl := range reg.Modifications {
		if existing, ok := p.Modifications[decl.Name]; ok {
			mods[decl.Name] = updateModification(existing, decl)
		} else {
			mods[decl.Name] = newModification(decl)
		}
	}
	p.Modifications = mods
	err := r.store.SaveProvider(p)
	r.mu.Unlock()

	cp, _ := r.Provider(reg.ID)
	return cp, err
}

func declaredCap(declared *int) int {
	if declared == nil || *declared > protocol.MaxModificationLength {
		return protocol.MaxModificationLength
	}
	if *declared < 0 {
		return 0
	}
	return *declared
}

func newModification(decl protocol.RegisterModification) *PersistedModification {
	limit := declaredCap(decl.MaxLength)
	return &PersistedModification{
		Name:        decl.Name,
		Description: decl.Description,
		Tooltip:     decl.Tooltip,
		Icon:        decl.Icon,
		DeclaredMax: limit,
		CustomMin:   0,
		CustomMax:   limit,
		Enabled:     false,
		Options:     mergeDeclaredOptions(decl.Options, nil),
	}
}

func updateModification(m *PersistedModification, decl protocol.RegisterModification) *PersistedModification {
	m.Description = decl.Description
	m.Tooltip = decl.Tooltip
	m.Icon = decl.Icon
	m.DeclaredMax = declaredCap(decl.MaxLength)
	m.CustomMax = min(m.CustomMax, m.DeclaredMax)
	m.CustomMin = min(max(m.CustomMin, 0), m.CustomMax)
	m.Options = mergeDeclaredOptions(decl.Options, m.Options)
	return m
}

// mergeDeclaredOptions keeps a stored value only if it still fits the
// declared option. A nil declaration clears every option.
func mergeDeclaredOptions(declared []protocol.RegisterOption, stored map[string]StoredOption) map[string]StoredOption {
	out := make(map[string]StoredOption, len(declared))
	for _, o := range declared {
		if s, ok := stored[o.ID]; ok && optionFits(o, s.Value) {
			out[o.ID] = StoredOption{Value: s.Value, NumType: o.NumType}
			continue
		}
		out[o.ID] = StoredOption{Value: o.Default, NumType: o.NumType}
	}
	return out
}

func optionFits(o protocol.RegisterOption, value interface{}) bool {
	switch o.Default.(type) {
	case bool:
		_, ok := value.(bool)
		return ok
	case float64:
		if _, ok := value.(float64); !ok {
			return false
		}
	case string:
		if _, ok := value.(string); !ok {
			return false
		}
	default:
		return false
	}
	if o.ValidValues == nil {
		return true
	}
	for _, v := range o.ValidValues {
		if scalarEqual(v, value) {
			return true
		}
	}
	return false
}

// scalarEqual compares JSON scalars without panicking on maps or slices.
func scalarEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	}
	return false
}

func isScalar(v interface{}) bool {
	switch v.(type) {
	case bool, float64, string:
		return true
	}
	return false
}

// PatchResult describes what ApplyConfigPatch changed.
type PatchResult struct {
	// SettingsChanged is set when interface or poll settings were present.
	SettingsChanged bool

	// PollSettingsPatched is set when poll settings were present.
	PollSettingsPatched bool

	// EbsURLChanged is set when the aggregator URL differs from before.
	EbsURLChanged bool

	// Clients lists the patched providers that have a stored record.
	Clients []string

	// Settings is the result after the patch.
	Settings GlobalSettings
}

func hasJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// ApplyConfigPatch merges a Config.Change into settings and stored
// providers, then persists every touched record. Settings are decoded over
// the current values so only keys present in the patch change.
func (r *Registry) ApplyConfigPatch(patch *protocol.ConfigChange) (PatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.settings
	result := PatchResult{}

	if hasJSON(patch.InterfaceSettings) {
		if err := json.Unmarshal(patch.InterfaceSettings, &next.InterfaceSettings); err != nil {
			return result, fmt.Errorf("%w: interfaceSettings: %v", ErrInvalidPatch, err)
		}
		result.SettingsChanged = true
	}
	if hasJSON(patch.PollSettings) {
		if err := json.Unmarshal(patch.PollSettings, &next.PollSettings); err != nil {
			return result, fmt.Errorf("%w: pollSettings: %v", ErrInvalidPatch, err)
		}
		next.PollSettings.Normalize()
		if err := validation.ValidateStruct(&next.PollSettings); err != nil {
			return result, fmt.Errorf("%w: pollSettings: %v", ErrInvalidPatch, err)
		}
		result.SettingsChanged = true
		result.PollSettingsPatched = true
		result.EbsURLChanged = next.PollSettings.EbsURL != r.settings.PollSettings.EbsURL
	}
	r.settings = next
	result.Settings = next

	ids := make([]string, 0, len(patch.Clients))
	for id := range patch.Clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if result.SettingsChanged {
		if err := r.store.SaveSettings(next); err != nil {
			return result, err
		}
	}

	for _, id := range ids {
		p, ok := r.providers[id]
		if !ok {
			logging.Debug().Str("provider", id).Msg("Ignoring patch for unknown provider")
			continue
		}
		patchProvider(p, patch.Clients[id])
		if err := r.store.SaveProvider(p); err != nil {
			return result, err
		}
		result.Clients = append(result.Clients, id)
	}
	return result, nil
}

func patchProvider(p *PersistedProvider, c protocol.ConfigChangeClient) {
	for name, mc := range c.Modifications {
		if mod, ok := p.Modifications[name]; ok {
			patchModification(mod, mc)
		}
	}
	mergeOptionValues(p.Options, c.Options)
}

func patchModification(m *PersistedModification, c protocol.ConfigChangeModification) {
	if c.Description != nil {
		if *c.Description == "" {
			m.CustomDescription = nil
		} else {
			d := *c.Description
			m.CustomDescription = &d
		}
	}

	limit := min(m.DeclaredMax, protocol.MaxModificationLength)
	if c.MaxLength != nil {
		m.CustomMax = min(max(*c.MaxLength, 0), limit)
		m.CustomMin = min(m.CustomMin, m.CustomMax)
	}
	if c.MinLength != nil {
		m.CustomMin = min(max(*c.MinLength, 0), limit)
		m.CustomMax = max(m.CustomMin, m.CustomMax)
	}

	if c.Enabled != nil {
		m.Enabled = *c.Enabled
	}
	if m.Options == nil {
		m.Options = make(map[string]StoredOption)
	}
	mergeOptionValues(m.Options, c.Options)

	if c.Tooltip != nil {
		if *c.Tooltip == "" {
			m.CustomTooltip = nil
		} else {
			t := *c.Tooltip
			m.CustomTooltip = &t
		}
	}
}

func mergeOptionValues(dst map[string]StoredOption, values map[string]interface{}) {
	for id, v := range values {
		if !isScalar(v) {
			logging.Debug().Str("option", id).Msg("Ignoring non-scalar option value")
			continue
		}
		o := dst[id]
		o.Value = v
		dst[id] = o
	}
}
