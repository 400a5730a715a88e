// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package registry

import (
	"errors"
	"io"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/modvote/internal/logging"
	"github.com/tomtom215/modvote/internal/protocol"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

const testEbsURL = "ws://localhost:30000"

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := OpenStore(StoreConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	r, err := New(store, testEbsURL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
func boolPtr(v bool) *bool    { return &v }

func buzzRegistration() protocol.ClientRegister {
	return protocol.ClientRegister{
		ID: "Buzz",
		Modifications: []protocol.RegisterModification{
			{Name: "Buzz", Description: "Vibrate", MaxLength: intPtr(60)},
			{Name: "Shake", Description: "Shake the screen"},
		},
		Options: []protocol.RegisterOption{
			{ID: "strength", Default: 0.5, NumType: "double"},
		},
	}
}

func TestPublicID(t *testing.T) {
	tests := []struct {
		id       string
		provider string
		name     string
		wantErr  bool
	}{
		{"Buzz|Buzz", "Buzz", "Buzz", false},
		{"a|b|c", "a", "b|c", false},
		{"|b", "", "", true},
		{"a|", "", "", true},
		{"ab", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			provider, name, err := ParsePublicID(tt.id)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPublicID) {
					t.Fatalf("expected ErrInvalidPublicID, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePublicID: %v", err)
			}
			if provider != tt.provider || name != tt.name {
				t.Errorf("got (%q, %q), want (%q, %q)", provider, name, tt.provider, tt.name)
			}
			if PublicID(provider, name) != tt.id {
				t.Errorf("PublicID round trip failed for %q", tt.id)
			}
		})
	}
}

func TestFreshSettings(t *testing.T) {
	r := newTestRegistry(t)
	s := r.Settings()

	if s.PollSettings.Duration != protocol.MinPollDuration {
		t.Errorf("Duration = %d, want %d", s.PollSettings.Duration, protocol.MinPollDuration)
	}
	if s.PollSettings.Frequency != 0 || s.PollSettings.AllowNoModification {
		t.Errorf("unexpected poll settings %+v", s.PollSettings)
	}
	if s.PollSettings.EbsURL != testEbsURL {
		t.Errorf("EbsURL = %q", s.PollSettings.EbsURL)
	}
	if s.InterfaceSettings.WinnerName != "Winner" {
		t.Errorf("WinnerName = %q", s.InterfaceSettings.WinnerName)
	}
}

func TestUpsertNewProvider(t *testing.T) {
	r := newTestRegistry(t)

	p, err := r.UpsertFromRegistration(buzzRegistration())
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	buzz := p.Modifications["Buzz"]
	if buzz == nil || buzz.CustomMin != 0 || buzz.CustomMax != 60 || buzz.Enabled {
		t.Errorf("Buzz = %+v", buzz)
	}
	shake := p.Modifications["Shake"]
	if shake == nil || shake.CustomMax != protocol.MaxModificationLength {
		t.Errorf("Shake = %+v", shake)
	}
	if got := p.Options["strength"].Value; got != 0.5 {
		t.Errorf("strength = %v, want 0.5", got)
	}
}

func TestUpsertClampsExisting(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.UpsertFromRegistration(buzzRegistration()); err != nil {
		t.Fatal(err)
	}

	_, err := r.ApplyConfigPatch(&protocol.ConfigChange{
		Clients: map[string]protocol.ConfigChangeClient{
			"Buzz": {
				Modifications: map[string]protocol.ConfigChangeModification{
					"Buzz":  {MinLength: intPtr(40), Enabled: boolPtr(true)},
					"Shake": {MaxLength: intPtr(100)},
				},
				Options: map[string]interface{}{"strength": 0.9},
			},
		},
	})
	if err != nil {
		t.Fatalf("ApplyConfigPatch: %v", err)
	}

	reg := buzzRegistration()
	reg.Modifications = []protocol.RegisterModification{
		{Name: "Buzz", MaxLength: intPtr(30)},
	}
	p, err := r.UpsertFromRegistration(reg)
	if err != nil {
		t.Fatal(err)
	}

	buzz := p.Modifications["Buzz"]
	if buzz.CustomMax != 30 || buzz.CustomMin != 30 || !buzz.Enabled {
		t.Errorf("Buzz after re-register = %+v", buzz)
	}
	if _, ok := p.Modifications["Shake"]; ok {
		t.Error("undeclared modification should be dropped")
	}
	if got := p.Options["strength"].Value; got != 0.9 {
		t.Errorf("strength = %v, want kept 0.9", got)
	}
}

func TestUpsertOptionTypeChange(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.UpsertFromRegistration(buzzRegistration()); err != nil {
		t.Fatal(err)
	}

	reg := buzzRegistration()
	reg.Options = []protocol.RegisterOption{
		{ID: "strength", Default: "low", ValidValues: []interface{}{"low", "high"}},
	}
	p, err := r.UpsertFromRegistration(reg)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Options["strength"].Value; got != "low" {
		t.Errorf("strength = %v, want reset to default", got)
	}

	reg.Options = nil
	p, err = r.UpsertFromRegistration(reg)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Options) != 0 {
		t.Errorf("nil option list should clear options, got %v", p.Options)
	}
}

func TestPatchModificationBounds(t *testing.T) {
	tests := []struct {
		name    string
		patch   protocol.ConfigChangeModification
		wantMin int
		wantMax int
	}{
		{"max above cap", protocol.ConfigChangeModification{MaxLength: intPtr(500)}, 0, 60},
		{"min applied after max", protocol.ConfigChangeModification{MinLength: intPtr(20), MaxLength: intPtr(10)}, 20, 20},
		{"lower max", protocol.ConfigChangeModification{MaxLength: intPtr(50)}, 0, 50},
		{"negative min", protocol.ConfigChangeModification{MinLength: intPtr(-5)}, 0, 60},
		{"min pushes max up", protocol.ConfigChangeModification{MaxLength: intPtr(10), MinLength: intPtr(40)}, 40, 40},
		{"min above cap", protocol.ConfigChangeModification{MinLength: intPtr(90)}, 60, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newModification(protocol.RegisterModification{Name: "Buzz", MaxLength: intPtr(60)})
			patchModification(m, tt.patch)
			if m.CustomMin != tt.wantMin || m.CustomMax != tt.wantMax {
				t.Errorf("bounds = [%d, %d], want [%d, %d]", m.CustomMin, m.CustomMax, tt.wantMin, tt.wantMax)
			}
			if m.CustomMin < 0 || m.CustomMin > m.CustomMax || m.CustomMax > m.DeclaredMax {
				t.Errorf("invariant broken: %+v", m)
			}
		})
	}
}

func TestPatchDescriptionAndTooltip(t *testing.T) {
	m := newModification(protocol.RegisterModification{Name: "Buzz", Description: "Vibrate", Tooltip: strPtr("bzz")})

	patchModification(m, protocol.ConfigChangeModification{Description: strPtr("Rumble"), Tooltip: strPtr("brr")})
	if m.EffectiveDescription() != "Rumble" || *m.EffectiveTooltip() != "brr" {
		t.Errorf("custom values not applied: %+v", m)
	}

	patchModification(m, protocol.ConfigChangeModification{Description: strPtr(""), Tooltip: strPtr("")})
	if m.EffectiveDescription() != "Vibrate" || *m.EffectiveTooltip() != "bzz" {
		t.Errorf("empty strings should restore declared values: %+v", m)
	}
}

func TestApplySettingsPatch(t *testing.T) {
	r := newTestRegistry(t)

	res, err := r.ApplyConfigPatch(&protocol.ConfigChange{
		PollSettings:      json.RawMessage(`{"frequency":60,"duration":10,"mode":"weighted_random"}`),
		InterfaceSettings: json.RawMessage(`{"winnerName":"Gewinner"}`),
	})
	if err != nil {
		t.Fatalf("ApplyConfigPatch: %v", err)
	}
	if !res.SettingsChanged || !res.PollSettingsPatched || res.EbsURLChanged {
		t.Errorf("unexpected result %+v", res)
	}

	s := r.Settings()
	if s.PollSettings.Frequency != 60 || s.PollSettings.Duration != protocol.MinPollDuration {
		t.Errorf("poll settings = %+v", s.PollSettings)
	}
	if s.PollSettings.Mode != protocol.ModeWeightedRandom {
		t.Errorf("mode = %s", s.PollSettings.Mode)
	}
	if s.InterfaceSettings.WinnerName != "Gewinner" || s.InterfaceSettings.PollEndedText != "Poll ended" {
		t.Errorf("interface settings = %+v", s.InterfaceSettings)
	}

	res, err = r.ApplyConfigPatch(&protocol.ConfigChange{
		PollSettings: json.RawMessage(`{"ebsUrl":"ws://example.com:30000"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.EbsURLChanged {
		t.Error("EbsURLChanged should be set")
	}
}

func TestApplySettingsPatchRejectsInvalid(t *testing.T) {
	r := newTestRegistry(t)
	before := r.Settings()

	_, err := r.ApplyConfigPatch(&protocol.ConfigChange{
		PollSettings: json.RawMessage(`{"mode":"dictator"}`),
	})
	if !errors.Is(err, ErrInvalidPatch) {
		t.Fatalf("expected ErrInvalidPatch, got %v", err)
	}
	if r.Settings() != before {
		t.Error("settings changed after rejected patch")
	}
}

func TestLiveStateAndViews(t *testing.T) {
	r := newTestRegistry(t)
	reg := buzzRegistration()

	if err := r.Attach(1, reg); err != nil {
		t.Fatal(err)
	}
	if err := r.Attach(2, reg); !errors.Is(err, ErrProviderOwned) {
		t.Fatalf("expected ErrProviderOwned, got %v", err)
	}
	if _, err := r.UpsertFromRegistration(reg); err != nil {
		t.Fatal(err)
	}

	if mods := r.EffectiveModifications(); len(mods) != 0 {
		t.Errorf("nothing is initialized yet, got %v", mods)
	}

	r.SetInitialized("Buzz", []string{"Buzz"})
	mods := r.EffectiveModifications()
	if len(mods) != 1 || mods[0].ID != "Buzz|Buzz" || mods[0].MaxLength != 60 {
		t.Fatalf("EffectiveModifications = %+v", mods)
	}

	if !r.MarkRunning("Buzz", "Buzz") {
		t.Error("MarkRunning should succeed")
	}
	if r.MarkRunning("Buzz", "Buzz") {
		t.Error("MarkRunning twice should fail")
	}
	if r.MarkRunning("Buzz", "Shake") {
		t.Error("Shake is not initialized")
	}

	target, err := r.Lookup("Buzz|Buzz")
	if err != nil || !target.Running || target.SessionID != 1 {
		t.Errorf("Lookup = %+v, %v", target, err)
	}
	if _, err := r.Lookup("Buzz|Shake"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}

	removed := r.MarkStopped("Buzz", []string{"Buzz", "Shake"})
	if len(removed) != 1 || removed[0] != "Buzz|Buzz" {
		t.Errorf("MarkStopped = %v", removed)
	}

	ca := r.ConfigAvailable(nil)
	if len(ca.Clients) != 1 || len(ca.Clients[0].Modifications) != 2 {
		t.Fatalf("ConfigAvailable = %+v", ca)
	}
	if opt := ca.Clients[0].Options[0]; opt.Value != 0.5 || opt.Default != 0.5 {
		t.Errorf("option = %+v", opt)
	}

	initMsg, ok := r.InitializeMessage("Buzz")
	if !ok || len(initMsg.Modifications) != 2 || initMsg.Options["strength"] != 0.5 {
		t.Errorf("InitializeMessage = %+v, %v", initMsg, ok)
	}

	providerID, ok := r.Detach(1)
	if !ok || providerID != "Buzz" {
		t.Errorf("Detach = %q, %v", providerID, ok)
	}
	if _, err := r.Lookup("Buzz|Buzz"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := r.Attach(2, reg); err != nil {
		t.Errorf("provider id should be free after detach: %v", err)
	}
}

func TestPersistenceAcrossReload(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(StoreConfig{Path: dir})
	if err != nil {
		t.Fatal(err)
	}
	r, err := New(store, testEbsURL)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.UpsertFromRegistration(buzzRegistration()); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ApplyConfigPatch(&protocol.ConfigChange{
		PollSettings: json.RawMessage(`{"frequency":90}`),
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	store, err = OpenStore(StoreConfig{Path: dir})
	if err != nil {
		t.Fatal(err)
	}
	r, err = New(store, testEbsURL)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.Settings().PollSettings.Frequency != 90 {
		t.Errorf("frequency not persisted: %+v", r.Settings().PollSettings)
	}
	if _, ok := r.Provider("Buzz"); !ok {
		t.Error("provider not persisted")
	}
}

func TestStoreClosed(t *testing.T) {
	store, err := OpenStore(StoreConfig{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.RunGC(0.5); err != nil {
		t.Errorf("RunGC on an in-memory store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := store.SaveSettings(GlobalSettings{}); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
	if err := store.RunGC(0.5); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("RunGC after Close = %v, want ErrStoreClosed", err)
	}
}
