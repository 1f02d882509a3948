// Package auth protects the operator-facing API routes with static
// bearer keys. Auth is optional: when no keys are configured the routes
// stay open, which fits single-tenant internal deployments.
package auth

import (
	"context"
	"fmt"
	"strings"
)

// Identity names the caller behind a valid API key.
type Identity struct {
	Name string
}

type KeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

// StaticKeyValidator resolves keys from a fixed spec loaded at startup.
type StaticKeyValidator struct {
	keys map[string]Identity
}

// NewStaticKeyValidator parses a comma-separated "key:name" spec. A
// bare "key" entry is accepted and named "operator".
func NewStaticKeyValidator(spec string) (*StaticKeyValidator, error) {
	validator := &StaticKeyValidator{keys: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(spec, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		key := strings.TrimSpace(parts[0])
		if key == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key", entry)
		}
		name := "operator"
		if len(parts) == 2 {
			name = strings.TrimSpace(parts[1])
			if name == "" {
				return nil, fmt.Errorf("invalid static key entry %q: empty name", entry)
			}
		}
		validator.keys[key] = Identity{Name: name}
	}

	return validator, nil
}

func (v *StaticKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}
