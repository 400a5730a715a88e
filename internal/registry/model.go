// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package registry

import (
	"errors"
	"strings"

	"github.com/tomtom215/modvote/internal/protocol"
)

// PublicIDSeparator joins a provider id and a modification name.
const PublicIDSeparator = "|"

// ErrInvalidPublicID is returned by ParsePublicID.
var ErrInvalidPublicID = errors.New("invalid modification id")

// PublicID builds the system-wide modification id.
func PublicID(providerID, name string) string {
	return providerID + PublicIDSeparator + name
}

// ParsePublicID splits a public id on the first separator. Both parts must
// be non-empty.
func ParsePublicID(id string) (providerID, name string, err error) {
	providerID, name, found := strings.Cut(id, PublicIDSeparator)
	if !found || providerID == "" || name == "" {
		return "", "", ErrInvalidPublicID
	}
	return providerID, name, nil
}

// StoredOption is a persisted option value. Value holds a bool, a float64
// or a string.
type StoredOption struct {
	Value   interface{} `json:"value"`
	NumType string      `json:"numType,omitempty"`
}

// PersistedModification holds the declared and customised properties of one
// modification.
type PersistedModification struct {
	Name              string                  `json:"name"`
	Description       string                  `json:"description"`
	CustomDescription *string                 `json:"customDescription,omitempty"`
	Tooltip           *string                 `json:"tooltip,omitempty"`
	CustomTooltip     *string                 `json:"customTooltip,omitempty"`
	Icon              *protocol.Icon          `json:"icon,omitempty"`
	DeclaredMax       int                     `json:"declaredMax"`
	CustomMin         int                     `json:"customMin"`
	CustomMax         int                     `json:"customMax"`
	Enabled           bool                    `json:"enabled"`
	Options           map[string]StoredOption `json:"options"`
}

// EffectiveDescription is the custom description if set.
func (m *PersistedModification) EffectiveDescription() string {
	if m.CustomDescription != nil {
		return *m.CustomDescription
	}
	return m.Description
}

// EffectiveTooltip is the custom tooltip if set.
func (m *PersistedModification) EffectiveTooltip() *string {
	if m.CustomTooltip != nil {
		return m.CustomTooltip
	}
	return m.Tooltip
}

// ClampLength forces length into [CustomMin, CustomMax].
func (m *PersistedModification) ClampLength(length int) int {
	if length < m.CustomMin {
		return m.CustomMin
	}
	if length > m.CustomMax {
		return m.CustomMax
	}
	return length
}

// PersistedProvider is the stored record of one provider.
type PersistedProvider struct {
	ID            string                            `json:"id"`
	Icon          *protocol.Icon                    `json:"icon,omitempty"`
	Options       map[string]StoredOption           `json:"options"`
	Modifications map[string]*PersistedModification `json:"modifications"`
}

// GlobalSettings is the single settings record.
type GlobalSettings struct {
	InterfaceSettings protocol.InterfaceSettings `json:"interfaceSettings"`
	PollSettings      protocol.PollSettings      `json:"pollSettings"`
}

// DefaultGlobalSettings returns the settings of a fresh installation.
func DefaultGlobalSettings(ebsURL string) GlobalSettings {
	return GlobalSettings{
		InterfaceSettings: protocol.DefaultInterfaceSettings(),
		PollSettings:      protocol.DefaultPollSettings(ebsURL),
	}
}

// ProviderState is the live state of a connected provider.
type ProviderState struct {
	SessionID    uint64
	Registration protocol.ClientRegister
	Initialized  map[string]struct{}
	Running      map[string]struct{}
}

func newProviderState(sessionID uint64, reg protocol.ClientRegister) *ProviderState {
	return &ProviderState{
		SessionID:    sessionID,
		Registration: reg,
		Initialized:  make(map[string]struct{}),
		Running:      make(map[string]struct{}),
	}
}
