// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package orchestrator

import (
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/tomtom215/modvote/internal/hub"
	"github.com/tomtom215/modvote/internal/logging"
	"github.com/tomtom215/modvote/internal/metrics"
	"github.com/tomtom215/modvote/internal/protocol"
	"github.com/tomtom215/modvote/internal/registry"
)

// State is the channel authorization state.
type State int

const (
	StateIdle State = iota
	StateAuthorizing
	StateAuthorized
)

func (s State) String() string {
	switch s {
	case StateAuthorizing:
		return "authorizing"
	case StateAuthorized:
		return "authorized"
	default:
		return "idle"
	}
}

// Hub is the part of *hub.Hub the manager talks to.
type Hub interface {
	Send(s *hub.Session, msg protocol.Message) bool
	SendTo(id uint64, msg protocol.Message) bool
	Broadcast(pred hub.Predicate, msg protocol.Message) int
	Publish(ev hub.Event)
}

// Aggregator is the outbound side of the aggregator link.
type Aggregator interface {
	Connect(url string)
	Disconnect()
	Send(msg protocol.Message) bool
}

// Options tune a Manager. Zero values use the real clock and a randomly
// seeded generator.
type Options struct {
	Clock clockwork.Clock
	Rand  Rand
}

// Manager implements hub.Dispatcher.
type Manager struct {
	hub   Hub
	reg   *registry.Registry
	agg   Aggregator
	clock clockwork.Clock
	rng   Rand
	log   zerolog.Logger

	state       State
	pendingCode string
	channel     *protocol.Channel

	pollActive        bool
	pollAllowsNothing bool
	pollOrder         []string
	pollStartedAt     time.Time

	timer    clockwork.Timer
	timerGen uint64
	nextPoll time.Time
}

// New creates a Manager.
func New(h Hub, reg *registry.Registry, agg Aggregator, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Manager{
		hub:   h,
		reg:   reg,
		agg:   agg,
		clock: opts.Clock,
		rng:   opts.Rand,
		log:   logging.WithComponent("orchestrator"),
	}
}

// State returns the authorization state. Only safe on the hub loop.
func (m *Manager) State() State { return m.state }

// PollActive reports whether a poll is running. Only safe on the hub loop.
func (m *Manager) PollActive() bool { return m.pollActive }

// HandleMessage routes a decoded message from a local session.
func (m *Manager) HandleMessage(s *hub.Session, msg protocol.Message) {
	switch msg := msg.(type) {
	case *protocol.ClientRegister:
		m.OnClientRegister(s, msg)
	case *protocol.ClientInitialized:
		m.OnClientInitialized(s, msg.Modifications)
	case *protocol.ExecutionStartRequest:
		m.OnExecutionRequest(s, msg.ModificationID, msg.Length)
	case *protocol.ExecutionStarted:
		m.OnExecutionStarted(s, msg.ModificationID)
	case *protocol.ExecutionStopped:
		m.OnExecutionStopped(s, msg.Modifications)
	case *protocol.InfoMessage:
		m.hub.Broadcast(hub.Subscribers, msg)
	case *protocol.ConfigRegister:
		m.OnConfigRegister(s)
	case *protocol.ConfigChange:
		m.OnConfigChange(msg)
	case *protocol.ConfigStart:
		m.OnConfigStart()
	case *protocol.ConfigStop:
		m.OnConfigStop()
	case *protocol.InfoSubscribe:
		if !s.Has(hub.RoleSubscriber) {
			s.Grant(hub.RoleSubscriber)
			m.hub.Send(s, m.InfoOpen())
		}
	case *protocol.InfoUnsubscribe:
		s.Revoke(hub.RoleSubscriber)
	case *protocol.Authorization:
		m.hub.Send(s, protocol.OK{})
		m.OnAuthorizationRequest(msg.Data.Code)
	default:
		m.log.Debug().Str("type", msg.MessageType()).Uint64("session", s.ID()).Msg("Ignoring message")
	}
}

// HandleEvent processes events published onto the hub loop.
func (m *Manager) HandleEvent(ev hub.Event) {
	switch ev := ev.(type) {
	case AggregatorConnected:
		m.onAggregatorConnected(ev.URL)
	case AggregatorDisconnected:
		m.log.Info().Str("url", ev.URL).Msg("Aggregator connection lost")
		m.OnAggregatorDisconnect()
	case AggregatorMessage:
		m.handleAggregatorMessage(ev.Msg)
	case pollTimerFired:
		if ev.gen != m.timerGen {
			return
		}
		m.timer = nil
		m.nextPoll = time.Time{}
		m.StartNewPoll()
	default:
		m.log.Warn().Interface("event", ev).Msg("Unknown event")
	}
}

// HandleClose drops the provider owned by the session, if any.
func (m *Manager) HandleClose(s *hub.Session) {
	providerID, ok := m.reg.Detach(s.ID())
	if !ok {
		return
	}
	m.log.Info().Str("provider", providerID).Msg("Provider disconnected")
	m.sendInfoOpen()
	m.sendConfigAvailable()
}

func (m *Manager) handleAggregatorMessage(msg protocol.Message) {
	switch msg := msg.(type) {
	case *protocol.AuthorizationSuccess:
		m.OnAuthorizationSuccess(msg.Data)
	case *protocol.AuthorizationError:
		m.OnAuthorizationError(msg)
	case *protocol.PollStarted:
		m.OnPollStarted()
	case *protocol.PollError:
		m.OnPollError(msg.Reason)
	case *protocol.PollResult:
		m.OnPollResult(msg.Data)
	default:
		m.log.Debug().Str("type", msg.MessageType()).Msg("Ignoring aggregator message")
	}
}

// OnAuthorizationRequest connects to the aggregator and forwards the code
// once the link is up. Only honoured while Idle.
func (m *Manager) OnAuthorizationRequest(code string) {
	if m.state != StateIdle {
		m.log.Debug().Str("state", m.state.String()).Msg("Ignoring authorization request")
		return
	}
	m.state = StateAuthorizing
	m.pendingCode = code

	url := m.reg.Settings().PollSettings.EbsURL
	m.log.Info().Str("url", url).Msg("Connecting to aggregator")
	m.agg.Connect(url)
}

func (m *Manager) onAggregatorConnected(url string) {
	if m.state != StateAuthorizing || m.pendingCode == "" {
		return
	}
	m.log.Debug().Str("url", url).Msg("Sending authorization code to aggregator")
	if m.agg.Send(protocol.Authorization{Data: protocol.AuthorizationData{Code: m.pendingCode}}) {
		m.pendingCode = ""
	}
}

// OnAuthorizationSuccess completes the authorization.
func (m *Manager) OnAuthorizationSuccess(channel protocol.Channel) {
	m.state = StateAuthorized
	m.channel = &channel
	m.log.Info().Str("channel", channel.Name).Int64("channel_id", channel.ID).Msg("Authorized with aggregator")

	m.sendConfigAvailable()
	m.sendSetConfig()
}

// OnAuthorizationError relays a failed authorization to Configurers. The
// aggregator closes the link afterwards, which resets the state.
func (m *Manager) OnAuthorizationError(msg *protocol.AuthorizationError) {
	m.log.Warn().Str("reason", msg.Reason).Msg("Aggregator rejected authorization")
	m.hub.Broadcast(hub.Configurers, msg)
}

// OnAggregatorDisconnect resets to Idle.
func (m *Manager) OnAggregatorDisconnect() {
	m.state = StateIdle
	m.channel = nil
	m.pendingCode = ""

	if m.pollActive {
		m.pollActive = false
		metrics.PollsFinished.WithLabelValues("canceled").Inc()
		m.hub.Broadcast(hub.Subscribers, protocol.PollStopped{})
	}
	m.sendConfigAvailable()
}

// OnClientRegister registers a provider on s.
func (m *Manager) OnClientRegister(s *hub.Session, reg *protocol.ClientRegister) {
	if err := m.reg.Attach(s.ID(), *reg); err != nil {
		m.log.Info().Err(err).Uint64("session", s.ID()).Msg("Rejecting registration")
		return
	}
	s.Grant(hub.RoleProvider)

	if _, err := m.reg.UpsertFromRegistration(*reg); err != nil {
		m.log.Error().Err(err).Str("provider", reg.ID).Msg("Failed to persist provider")
	}
	m.log.Info().Str("provider", reg.ID).Int("modifications", len(reg.Modifications)).Msg("Provider registered")

	m.sendConfigAvailable()
	if initMsg, ok := m.reg.InitializeMessage(reg.ID); ok {
		m.hub.Send(s, initMsg)
	}
}

// OnClientInitialized replaces the initialized set of the session's provider.
func (m *Manager) OnClientInitialized(s *hub.Session, names []string) {
	providerID, ok := m.reg.ProviderForSession(s.ID())
	if !ok {
		m.log.Info().Uint64("session", s.ID()).Msg("Client.Initialized from unregistered session")
		return
	}
	m.reg.SetInitialized(providerID, names)
	m.log.Info().Str("provider", providerID).Strs("modifications", names).Msg("Provider initialized")
	m.sendInfoOpen()
}

// OnConfigRegister marks s as configurer and subscriber.
func (m *Manager) OnConfigRegister(s *hub.Session) {
	s.Grant(hub.RoleConfigurer | hub.RoleSubscriber)
	m.log.Debug().Uint64("session", s.ID()).Msg("Configuration client connected")
	m.hub.Send(s, m.configAvailable())
	m.hub.Send(s, m.InfoOpen())
}

// OnConfigChange applies a settings and provider patch.
func (m *Manager) OnConfigChange(patch *protocol.ConfigChange) {
	res, err := m.reg.ApplyConfigPatch(patch)
	if err != nil {
		m.log.Warn().Err(err).Msg("Rejected configuration change")
		m.sendConfigAvailable()
		return
	}
	m.log.Info().Bool("settings", res.SettingsChanged).Strs("clients", res.Clients).Msg("Configuration updated")

	if res.PollSettingsPatched && res.Settings.PollSettings.Frequency == 0 && m.cancelTimer() {
		m.hub.Broadcast(hub.Subscribers, protocol.NextPollCanceled{})
		m.agg.Send(protocol.NextPollCanceled{})
	}

	if res.EbsURLChanged {
		m.log.Info().Str("url", res.Settings.PollSettings.EbsURL).Msg("Aggregator URL changed, reauthorization required")
		m.agg.Disconnect()
		m.OnAggregatorDisconnect()
	} else if res.SettingsChanged {
		m.sendSetConfig()
	}

	for _, providerID := range res.Clients {
		sessionID, ok := m.reg.SessionForProvider(providerID)
		if !ok {
			continue
		}
		m.reg.ClearInitialized(providerID)
		if initMsg, ok := m.reg.InitializeMessage(providerID); ok {
			m.hub.SendTo(sessionID, initMsg)
		}
	}

	m.sendConfigAvailable()
	m.sendInfoOpen()
}

// OnConfigStart starts a poll right away.
func (m *Manager) OnConfigStart() {
	m.hub.Broadcast(hub.Configurers, protocol.ConfigStart{})
	m.StartNewPoll()
}

// OnConfigStop stops the running poll, the poll timer and every running
// modification.
func (m *Manager) OnConfigStop() {
	m.log.Info().Msg("Stopping polls and modifications")

	if m.pollActive {
		m.pollActive = false
		metrics.PollsFinished.WithLabelValues("canceled").Inc()
		m.hub.Broadcast(hub.Subscribers, protocol.PollStopped{})
		m.agg.Send(protocol.PollStopped{})
	}
	if m.cancelTimer() {
		m.hub.Broadcast(hub.Subscribers, protocol.NextPollCanceled{})
		m.agg.Send(protocol.NextPollCanceled{})
	}
	m.hub.Broadcast(hub.Providers, protocol.ExecutionStopRequest{})
}

// StartNewPoll asks the aggregator to run a poll over the enabled
// modifications.
func (m *Manager) StartNewPoll() {
	if m.state != StateAuthorized {
		m.log.Warn().Str("state", m.state.String()).Msg("Cannot start poll: not authorized")
		return
	}
	if m.pollActive {
		m.log.Warn().Msg("Cannot start poll: another poll is active")
		return
	}

	var options []protocol.StartPollOption
	for _, mod := range m.reg.EffectiveModifications() {
		if !mod.Enabled {
			continue
		}
		options = append(options, protocol.StartPollOption{
			Description: mod.Description,
			ID:          mod.ID,
			Logo:        mod.Logo,
			MaxLength:   mod.MaxLength,
			MinLength:   mod.MinLength,
			Tooltip:     mod.Tooltip,
		})
	}

	settings := m.reg.Settings().PollSettings
	if len(options) == 0 {
		m.log.Warn().Msg("No enabled modifications, skipping poll")
		m.InitializeTimer()
		return
	}
	options = SelectCandidates(options, settings.MaxModifications, m.rng)

	m.pollAllowsNothing = settings.AllowNoModification
	m.pollOrder = m.pollOrder[:0]
	for _, o := range options {
		m.pollOrder = append(m.pollOrder, o.ID)
	}

	m.log.Info().
		Bool("allow_nothing", settings.AllowNoModification).
		Int("duration", settings.Duration).
		Strs("options", m.pollOrder).
		Msg("Starting poll")

	m.agg.Send(protocol.StartPoll{Data: protocol.StartPollData{
		AllowNothing: settings.AllowNoModification,
		Duration:     settings.Duration,
		Options:      options,
	}})
}

// InitializeTimer re-arms the automatic poll timer.
func (m *Manager) InitializeTimer() {
	m.cancelTimer()

	freq := m.reg.Settings().PollSettings.Frequency
	if freq <= 0 {
		return
	}

	d := time.Duration(freq) * time.Second
	gen := m.timerGen
	m.timer = m.clock.AfterFunc(d, func() {
		m.hub.Publish(pollTimerFired{gen: gen})
	})
	m.nextPoll = m.clock.Now().Add(d)
	m.log.Debug().Int("seconds", freq).Msg("Next poll scheduled")

	msg := protocol.NextPoll{In: freq}
	m.agg.Send(msg)
	m.hub.Broadcast(hub.Subscribers, msg)
}

// cancelTimer stops the poll timer. It reports whether one was armed.
func (m *Manager) cancelTimer() bool {
	m.timerGen++
	m.nextPoll = time.Time{}
	if m.timer == nil {
		return false
	}
	m.timer.Stop()
	m.timer = nil
	return true
}

// OnPollStarted marks the poll active.
func (m *Manager) OnPollStarted() {
	m.pollActive = true
	m.pollStartedAt = m.clock.Now()
	metrics.PollsStarted.Inc()
	m.hub.Broadcast(hub.Subscribers, protocol.PollStarted{})
}

// OnPollError ends a poll the aggregator rejected or aborted.
func (m *Manager) OnPollError(reason string) {
	m.log.Warn().Str("reason", reason).Msg("Aggregator reported poll error")
	metrics.PollsFinished.WithLabelValues("error").Inc()
	m.pollActive = false
	m.hub.Broadcast(hub.Subscribers, protocol.PollStopped{})
}

// OnPollResult re-arms the timer, resolves the winner and ends the poll.
func (m *Manager) OnPollResult(result protocol.PollResultData) {
	m.InitializeTimer()
	outcome := m.ResolveResult(result)

	if m.pollActive {
		metrics.PollDuration.Observe(m.clock.Since(m.pollStartedAt).Seconds())
	}
	metrics.PollsFinished.WithLabelValues(outcome).Inc()

	m.pollActive = false
	m.hub.Broadcast(hub.Subscribers, protocol.PollStopped{})
}

// ResolveResult picks and starts the winner. It returns the outcome label.
func (m *Manager) ResolveResult(result protocol.PollResultData) string {
	configured := m.reg.Settings().PollSettings.Mode
	mode := EffectiveMode(configured, result.Mode)

	out, ok := Resolve(result, m.pollOrder, m.pollAllowsNothing, mode, m.rng)
	if !ok {
		m.log.Info().Msg("Poll ended without votes")
		return "no_votes"
	}

	if out.Nothing {
		m.log.Info().Str("mode", string(mode)).Int("votes", out.Votes).Int("total", out.Total).Msg("No modification won")
		m.agg.Send(protocol.PollWinner{Data: protocol.PollWinnerData{
			Duration:   0,
			ID:         protocol.NothingID,
			TotalVotes: out.Total,
			Votes:      out.Votes,
		}})
		return "nothing"
	}

	target, err := m.reg.Lookup(out.ID)
	if err != nil {
		m.log.Error().Err(err).Str("modification", out.ID).Msg("Cannot start poll winner")
		return "error"
	}

	duration := target.Modification.ClampLength(out.Duration)
	if duration != out.Duration {
		m.log.Info().Int("requested", out.Duration).Int("duration", duration).Str("modification", out.ID).Msg("Adjusted winner duration")
	}
	m.log.Info().
		Str("mode", string(mode)).
		Str("modification", out.ID).
		Int("duration", duration).
		Int("votes", out.Votes).
		Int("total", out.Total).
		Msg("Poll winner chosen")

	m.hub.SendTo(target.SessionID, protocol.ExecutionStartRequest{ModificationID: target.Name, Length: duration})
	m.agg.Send(protocol.PollWinner{Data: protocol.PollWinnerData{
		Duration:   duration,
		ID:         out.ID,
		TotalVotes: out.Total,
		Votes:      out.Votes,
	}})
	return "modification"
}

// OnExecutionRequest starts a modification on behalf of any session.
func (m *Manager) OnExecutionRequest(s *hub.Session, publicID string, length int) {
	log := m.log.With().Uint64("session", s.ID()).Str("modification", publicID).Logger()

	target, err := m.reg.Lookup(publicID)
	if err != nil {
		log.Info().Err(err).Msg("Rejecting execution request")
		return
	}
	if target.Running {
		log.Info().Msg("Rejecting execution request: already running")
		return
	}
	if !target.Modification.Enabled {
		log.Info().Msg("Rejecting execution request: not enabled")
		return
	}

	clamped := target.Modification.ClampLength(length)
	log.Info().Int("length", clamped).Msg("Forwarding execution request")
	m.hub.SendTo(target.SessionID, protocol.ExecutionStartRequest{ModificationID: target.Name, Length: clamped})
}

// OnExecutionStarted records a running modification and tells subscribers.
func (m *Manager) OnExecutionStarted(s *hub.Session, name string) {
	providerID, ok := m.reg.ProviderForSession(s.ID())
	if !ok {
		m.log.Error().Uint64("session", s.ID()).Msg("Execution.Started from unregistered session")
		return
	}
	publicID := registry.PublicID(providerID, name)
	if !m.reg.MarkRunning(providerID, name) {
		m.log.Info().Str("modification", publicID).Msg("Ignoring Execution.Started: not initialized or already running")
		return
	}
	m.log.Info().Str("modification", publicID).Msg("Modification started")
	m.hub.Broadcast(hub.Subscribers, protocol.ExecutionStarted{ModificationID: publicID})
}

// OnExecutionStopped records stopped modifications and tells subscribers.
func (m *Manager) OnExecutionStopped(s *hub.Session, names []string) {
	providerID, ok := m.reg.ProviderForSession(s.ID())
	if !ok {
		return
	}
	stopped := m.reg.MarkStopped(providerID, names)
	if len(stopped) == 0 {
		return
	}
	m.log.Info().Strs("modifications", stopped).Msg("Modifications stopped")
	m.hub.Broadcast(hub.Subscribers, protocol.ExecutionStopped{Modifications: stopped})
}

// InfoOpen builds the status snapshot.
func (m *Manager) InfoOpen() protocol.InfoOpen {
	data := protocol.InfoOpenData{
		Modifications: m.reg.EffectiveModifications(),
		PollActive:    m.pollActive,
	}
	if !m.nextPoll.IsZero() {
		if remaining := m.nextPoll.Sub(m.clock.Now()); remaining > 0 {
			secs := int(remaining.Round(time.Second) / time.Second)
			data.NextPoll = &secs
		}
	}
	return protocol.InfoOpen{Data: data}
}

func (m *Manager) sendInfoOpen() {
	m.hub.Broadcast(hub.Subscribers, m.InfoOpen())
}

func (m *Manager) configAvailable() protocol.ConfigAvailable {
	return m.reg.ConfigAvailable(m.channel)
}

func (m *Manager) sendConfigAvailable() {
	m.hub.Broadcast(hub.Configurers, m.configAvailable())
}

func (m *Manager) sendSetConfig() {
	m.agg.Send(protocol.SetConfig{Data: m.reg.SetConfigData()})
}
