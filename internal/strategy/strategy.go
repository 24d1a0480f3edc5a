package strategy

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fibhq/outbox-bridge/internal/model"
)

// Context identifies the delivery a publish belongs to.
type Context struct {
	DestinationID  string
	DestinationKey string
	DeliveryID     string
}

// ConfigField describes one destination configuration field, for admin
// surfaces to render forms from.
type ConfigField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Label       string `json:"label"`
	Required    bool   `json:"required,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Default     string `json:"default,omitempty"`
}

// Strategy publishes an event to one kind of destination. Publish must
// return an error on any non-success outcome so the retry machinery
// activates, and must tolerate being retried (at-least-once semantics).
type Strategy interface {
	Type() string
	Label() string
	ConfigFields() []ConfigField
	ValidateConfig(config map[string]any) error
	Publish(ctx context.Context, event model.DomainEvent, dctx Context, config map[string]any) error
}

// Registry holds the known strategies keyed by destination type.
type Registry struct {
	byType map[string]Strategy
}

// NewRegistry builds a registry, rejecting duplicate type registration.
func NewRegistry(strategies ...Strategy) (*Registry, error) {
	byType := make(map[string]Strategy, len(strategies))

	for _, s := range strategies {
		t := strings.ToLower(strings.TrimSpace(s.Type()))
		if t == "" {
			return nil, fmt.Errorf("strategy %q has empty type", s.Label())
		}
		if _, dup := byType[t]; dup {
			return nil, fmt.Errorf("duplicate strategy registration for type %q", t)
		}
		byType[t] = s
	}

	return &Registry{byType: byType}, nil
}

// ByType looks up a strategy by destination type (case-insensitive).
func (r *Registry) ByType(destinationType string) (Strategy, bool) {
	s, ok := r.byType[strings.ToLower(strings.TrimSpace(destinationType))]
	return s, ok
}

// TypeDefinition is the admin-facing description of one strategy.
type TypeDefinition struct {
	Type         string        `json:"type"`
	Label        string        `json:"label"`
	ConfigFields []ConfigField `json:"configFields"`
}

// TypeDefinitions lists all registered strategies sorted by label.
func (r *Registry) TypeDefinitions() []TypeDefinition {
	defs := make([]TypeDefinition, 0, len(r.byType))
	for t, s := range r.byType {
		defs = append(defs, TypeDefinition{Type: t, Label: s.Label(), ConfigFields: s.ConfigFields()})
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].Label < defs[j].Label })

	return defs
}

// stringValue coerces a config entry to a trimmed string; JSON numbers are
// formatted without an exponent.
func stringValue(config map[string]any, key string) string {
	switch v := config[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func requireFields(strategyType string, config map[string]any, fields ...string) error {
	for _, f := range fields {
		if stringValue(config, f) == "" {
			return fmt.Errorf("%s destination requires %q config", strategyType, f)
		}
	}
	return nil
}
