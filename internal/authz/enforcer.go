// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package authz

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Roles and actions used in the policy.
const (
	RoleAnyone     = "anyone"
	RoleProvider   = "provider"
	RoleConfigurer = "configurer"
	RoleSubscriber = "subscriber"

	ActionHandle = "handle"
)

// EnforcerConfig selects an alternative policy file.
type EnforcerConfig struct {
	PolicyPath string
}

// Enforcer answers routing questions. Decisions are cached because the
// policy does not change at runtime.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
	cache    sync.Map // key -> bool
}

// NewEnforcer builds an enforcer from the embedded model and either the
// embedded policy or cfg.PolicyPath.
func NewEnforcer(cfg *EnforcerConfig) (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if cfg != nil && cfg.PolicyPath != "" {
		if _, statErr := os.Stat(cfg.PolicyPath); statErr != nil {
			return nil, fmt.Errorf("policy file: %w", statErr)
		}
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	return &Enforcer{enforcer: enforcer}, nil
}

func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		switch {
		case parts[0] == "p" && len(parts) == 4:
			if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
			}
		case parts[0] == "g" && len(parts) == 3:
			if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", parts[1:], err)
			}
		default:
			return fmt.Errorf("invalid policy line %q", line)
		}
	}
	return nil
}

// Enforce checks a single subject.
func (e *Enforcer) Enforce(subject, object, action string) (bool, error) {
	key := subject + "\x00" + object + "\x00" + action
	if v, ok := e.cache.Load(key); ok {
		return v.(bool), nil
	}
	allowed, err := e.enforcer.Enforce(subject, object, action)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	e.cache.Store(key, allowed)
	return allowed, nil
}

// Allowed reports whether any of roles, or the implicit "anyone" role, may
// perform action on object.
func (e *Enforcer) Allowed(roles []string, object, action string) (bool, error) {
	for _, subject := range append([]string{RoleAnyone}, roles...) {
		allowed, err := e.Enforce(subject, object, action)
		if err != nil {
			return false, err
		}
		if allowed {
			return true, nil
		}
	}
	return false, nil
}
