// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package protocol

import "github.com/goccy/go-json"

// Message is implemented by every wire message.
type Message interface {
	MessageType() string
}

// Icon is an emoji or a base64 encoded PNG.
type Icon struct {
	Data string `json:"data" validate:"required"`
	Type string `json:"type" validate:"oneof=emoji png"`
}

// RegisterOption declares a configurable option and its default.
type RegisterOption struct {
	ID          string        `json:"id" validate:"required"`
	Description string        `json:"description"`
	Default     interface{}   `json:"default"`
	NumType     string        `json:"numType,omitempty" validate:"omitempty,oneof=int double"`
	ValidValues []interface{} `json:"validValues,omitempty"`
}

// RegisterModification declares one modification a provider can run.
type RegisterModification struct {
	Name        string           `json:"name" validate:"required"`
	Description string           `json:"description"`
	Icon        *Icon            `json:"icon,omitempty"`
	MaxLength   *int             `json:"maxLength,omitempty" validate:"omitempty,min=0"`
	Options     []RegisterOption `json:"options,omitempty" validate:"omitempty,dive"`
	Tooltip     *string          `json:"tooltip,omitempty"`
}

// ClientRegister is sent by a provider right after connecting.
type ClientRegister struct {
	ID            string                 `json:"id" validate:"required,excludes=0x7C"`
	Icon          *Icon                  `json:"icon,omitempty"`
	Modifications []RegisterModification `json:"modifications,omitempty" validate:"omitempty,dive"`
	Options       []RegisterOption       `json:"options,omitempty" validate:"omitempty,dive"`
}

func (ClientRegister) MessageType() string { return TypeClientRegister }

// InitializeModification carries the effective option values of one
// modification.
type InitializeModification struct {
	Name    string                 `json:"name"`
	Options map[string]interface{} `json:"options"`
}

// ClientInitialize tells a provider which modifications to prepare.
type ClientInitialize struct {
	Modifications []InitializeModification `json:"modifications"`
	Options       map[string]interface{}   `json:"options"`
}

func (ClientInitialize) MessageType() string { return TypeClientInitialize }

// ClientInitialized lists the modifications a provider is ready to run.
type ClientInitialized struct {
	Modifications []string `json:"modifications"`
}

func (ClientInitialized) MessageType() string { return TypeClientInitialized }

// ExecutionStartRequest asks for a modification to run for Length seconds.
// Providers send public ids; the hub sends bare names to providers.
type ExecutionStartRequest struct {
	ModificationID string `json:"modificationId" validate:"required"`
	Length         int    `json:"length" validate:"min=0"`
}

func (ExecutionStartRequest) MessageType() string { return TypeExecutionStartRequest }

// ExecutionStarted reports a running modification.
type ExecutionStarted struct {
	ModificationID string `json:"modificationId" validate:"required"`
}

func (ExecutionStarted) MessageType() string { return TypeExecutionStarted }

// ExecutionStopped reports modifications that finished.
type ExecutionStopped struct {
	Modifications []string `json:"modifications"`
}

func (ExecutionStopped) MessageType() string { return TypeExecutionStopped }

// ExecutionStopRequest asks a provider to stop; an empty list means all.
type ExecutionStopRequest struct {
	Modifications []string `json:"modifications,omitempty"`
}

func (ExecutionStopRequest) MessageType() string { return TypeExecutionStopRequest }

// ClientOption is an option as shown in the configuration UI.
type ClientOption struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Default     interface{}   `json:"default"`
	NumType     string        `json:"numType,omitempty"`
	ValidValues []interface{} `json:"validValues,omitempty"`
	Value       interface{}   `json:"value"`
}

// ConfigAvailableModification is a modification as shown in the
// configuration UI.
type ConfigAvailableModification struct {
	CustomDescription *string        `json:"customDescription,omitempty"`
	CustomMaxLength   int            `json:"customMaxLength"`
	CustomMinLength   int            `json:"customMinLength"`
	Description       string         `json:"description"`
	Enabled           bool           `json:"enabled"`
	Icon              *Icon          `json:"icon,omitempty"`
	MaxLength         int            `json:"maxLength"`
	Name              string         `json:"name"`
	Options           []ClientOption `json:"options,omitempty"`
	Tooltip           *string        `json:"tooltip,omitempty"`
}

// ConfigAvailableClient is a persisted provider as shown in the
// configuration UI.
type ConfigAvailableClient struct {
	Icon          *Icon                         `json:"icon,omitempty"`
	ID            string                        `json:"id"`
	Modifications []ConfigAvailableModification `json:"modifications"`
	Options       []ClientOption                `json:"options"`
}

// ConfigRegister marks the sender as a configuration UI.
type ConfigRegister struct{}

func (ConfigRegister) MessageType() string { return TypeConfigRegister }

// ConfigAvailable is the full configuration snapshot.
type ConfigAvailable struct {
	Channel           *Channel                `json:"channel,omitempty"`
	Clients           []ConfigAvailableClient `json:"clients"`
	InterfaceSettings InterfaceSettings       `json:"interfaceSettings"`
	PollSettings      PollSettings            `json:"pollSettings"`
}

func (ConfigAvailable) MessageType() string { return TypeConfigAvailable }

// ConfigChangeModification patches one modification. Nil fields are left
// unchanged.
type ConfigChangeModification struct {
	Description *string                `json:"description,omitempty"`
	Enabled     *bool                  `json:"enabled,omitempty"`
	MaxLength   *int                   `json:"maxLength,omitempty"`
	MinLength   *int                   `json:"minLength,omitempty"`
	Options     map[string]interface{} `json:"options,omitempty"`
	Tooltip     *string                `json:"tooltip,omitempty"`
}

// ConfigChangeClient patches one provider.
type ConfigChangeClient struct {
	Modifications map[string]ConfigChangeModification `json:"modifications,omitempty"`
	Options       map[string]interface{}              `json:"options,omitempty"`
}

// ConfigChange patches settings and providers. The settings are kept as
// raw JSON so only the keys present in the message overwrite stored values.
type ConfigChange struct {
	Clients           map[string]ConfigChangeClient `json:"clients,omitempty"`
	InterfaceSettings json.RawMessage               `json:"interfaceSettings,omitempty"`
	PollSettings      json.RawMessage               `json:"pollSettings,omitempty"`
}

func (ConfigChange) MessageType() string { return TypeConfigChange }

// ConfigStart requests an immediate poll.
type ConfigStart struct{}

func (ConfigStart) MessageType() string { return TypeConfigStart }

// ConfigStop stops polling and running modifications.
type ConfigStop struct{}

func (ConfigStop) MessageType() string { return TypeConfigStop }

// InfoSubscribe subscribes the sender to status updates.
type InfoSubscribe struct{}

func (InfoSubscribe) MessageType() string { return TypeInfoSubscribe }

// InfoUnsubscribe ends a status subscription.
type InfoUnsubscribe struct{}

func (InfoUnsubscribe) MessageType() string { return TypeInfoUnsubscribe }

// ModificationInfo is the overlay's view of one modification.
type ModificationInfo struct {
	Description string  `json:"description"`
	Enabled     bool    `json:"enabled"`
	ID          string  `json:"id"`
	Logo        *Icon   `json:"logo,omitempty"`
	MaxLength   int     `json:"maxLength"`
	MinLength   int     `json:"minLength"`
	Running     bool    `json:"running"`
	Tooltip     *string `json:"tooltip,omitempty"`
}

// InfoOpenData is the status snapshot sent to subscribers.
type InfoOpenData struct {
	Modifications []ModificationInfo `json:"modifications"`
	NextPoll      *int               `json:"nextPoll,omitempty"`
	PollActive    bool               `json:"pollActive"`
}

// InfoOpen carries InfoOpenData.
type InfoOpen struct {
	Data InfoOpenData `json:"data"`
}

func (InfoOpen) MessageType() string { return TypeInfoOpen }

// InfoMessage is free-form provider output relayed to subscribers.
type InfoMessage struct {
	Data map[string]interface{} `json:"data"`
}

func (InfoMessage) MessageType() string { return TypeInfoMessage }

// AuthorizationData holds the OAuth authorization code.
type AuthorizationData struct {
	Code string `json:"code" validate:"required"`
}

// Authorization starts the channel authorization.
type Authorization struct {
	Data AuthorizationData `json:"data"`
}

func (Authorization) MessageType() string { return TypeAuthorization }

// Channel identifies the authorized broadcaster.
type Channel struct {
	ID   int64  `json:"id"`
	Logo string `json:"logo"`
	Name string `json:"name"`
}

// AuthorizationSuccess confirms the channel identity.
type AuthorizationSuccess struct {
	Data Channel `json:"data"`
}

func (AuthorizationSuccess) MessageType() string { return TypeAuthorizationSuccess }

// AuthorizationError reports a failed channel authorization. The aggregator
// closes the connection after sending it.
type AuthorizationError struct {
	Reason string `json:"reason"`
}

func (AuthorizationError) MessageType() string { return TypeAuthorizationError }

// OK acknowledges an Authorization request.
type OK struct{}

func (OK) MessageType() string { return TypeOK }

// StartPollOption is one votable modification.
type StartPollOption struct {
	Description string  `json:"description"`
	ID          string  `json:"id" validate:"required"`
	Logo        *Icon   `json:"logo,omitempty"`
	MaxLength   int     `json:"maxLength" validate:"min=0"`
	MinLength   int     `json:"minLength" validate:"min=0,ltefield=MaxLength"`
	Tooltip     *string `json:"tooltip,omitempty"`
}

// StartPollData describes a poll.
type StartPollData struct {
	AllowNothing bool              `json:"allowNothing"`
	Duration     int               `json:"duration" validate:"min=0"`
	Options      []StartPollOption `json:"options" validate:"min=1,unique=ID,dive"`
}

// StartPoll asks the aggregator to run a poll and tells viewers it began.
type StartPoll struct {
	Data StartPollData `json:"data"`
}

func (StartPoll) MessageType() string { return TypeStartPoll }

// PollStarted reports that the aggregator accepted a poll.
type PollStarted struct{}

func (PollStarted) MessageType() string { return TypePollStarted }

// PollStopped reports that voting ended.
type PollStopped struct{}

func (PollStopped) MessageType() string { return TypePollStopped }

// PollError reports a rejected or failed poll.
type PollError struct {
	Reason string `json:"reason"`
}

func (PollError) MessageType() string { return TypePollError }

// ModResult is the tally of one option.
type ModResult struct {
	Count    int `json:"count"`
	Duration int `json:"duration"`
}

// ModeResult counts the mode preferences.
type ModeResult struct {
	Plurality      int `json:"plurality"`
	WeightedRandom int `json:"weighted_random"`
}

// PollResultData is a tally.
type PollResultData struct {
	Mode    ModeResult           `json:"mode"`
	Mods    map[string]ModResult `json:"mods"`
	Nothing int                  `json:"nothing"`
}

// PollResult carries a final tally to the hub, or an intermediate tally to
// viewers.
type PollResult struct {
	Data PollResultData `json:"data"`
}

func (PollResult) MessageType() string { return TypePollResult }

// PollWinnerData announces the chosen option.
type PollWinnerData struct {
	Duration   int    `json:"duration"`
	ID         string `json:"id"`
	TotalVotes int    `json:"totalVotes"`
	Votes      int    `json:"votes"`
}

// PollWinner carries PollWinnerData.
type PollWinner struct {
	Data PollWinnerData `json:"data"`
}

func (PollWinner) MessageType() string { return TypePollWinner }

// NextPoll announces the next poll in In seconds.
type NextPoll struct {
	In int `json:"in" validate:"min=0"`
}

func (NextPoll) MessageType() string { return TypeNextPoll }

// NextPollCanceled withdraws a NextPoll announcement.
type NextPollCanceled struct{}

func (NextPollCanceled) MessageType() string { return TypeNextPollCanceled }

// SetConfigData is what viewers need to render the extension.
type SetConfigData struct {
	InterfaceSettings
	Mode         VotingMode   `json:"mode" validate:"oneof=plurality weighted_random viewers"`
	Participants Participants `json:"participants" validate:"oneof=all logged_in subscribers"`
}

// SetConfig carries SetConfigData.
type SetConfig struct {
	Data SetConfigData `json:"data"`
}

func (SetConfig) MessageType() string { return TypeSetConfig }

// ViewerAuthorization is the first message of an extension front-end.
type ViewerAuthorization struct {
	Token string `json:"token" validate:"required"`
}

func (ViewerAuthorization) MessageType() string { return TypeViewerAuthorization }

// Role tells a viewer its resolved role name.
type Role struct {
	Data string `json:"data"`
}

func (Role) MessageType() string { return TypeRole }

// VoteData is a partial vote update.
type VoteData struct {
	Duration       *int    `json:"duration,omitempty" validate:"omitempty,min=0"`
	Mode           *string `json:"mode,omitempty" validate:"omitempty,oneof=plurality weighted_random reset"`
	Modification   *string `json:"modification,omitempty"`
	NoModification *bool   `json:"noModification,omitempty"`
}

// Vote carries VoteData.
type Vote struct {
	Data VoteData `json:"data"`
}

func (Vote) MessageType() string { return TypeVote }
