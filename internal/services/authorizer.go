package services

import (
	"context"
	"strings"
)

// Capability names a privileged action class.
type Capability string

const (
	CapabilityAdmin Capability = "admin"
	// CapabilityEarn allows crediting earnings directly, outside of the activities.
	CapabilityEarn Capability = "earn"
)

// Authorizer decides whether actorID holds capability.
type Authorizer interface {
	Authorize(ctx context.Context, actorID string, capability Capability) error
}

// AllowlistAuthorizer grants every capability to a fixed set of account ids.
type AllowlistAuthorizer struct {
	ids map[string]struct{}
}

func NewAllowlistAuthorizer(ids []string) *AllowlistAuthorizer {
	a := &AllowlistAuthorizer{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			a.ids[id] = struct{}{}
		}
	}
	return a
}

func (a *AllowlistAuthorizer) Authorize(_ context.Context, actorID string, _ Capability) error {
	if _, ok := a.ids[actorID]; ok && actorID != "" {
		return nil
	}
	return ErrForbidden
}
