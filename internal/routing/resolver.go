package routing

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/fibhq/outbox-bridge/internal/model"
)

// Source provides the active routing configuration.
type Source interface {
	ListActiveDestinations(ctx context.Context) ([]model.Destination, error)
	ListActiveRoutes(ctx context.Context) ([]model.Route, error)
}

// Resolver expands an event name into an ordered, deduplicated set of
// destinations using the configured routes.
type Resolver struct {
	source Source
}

func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// ResolveTargetsForEventName returns the destinations the event must reach.
// Routes are evaluated in ascending priority; within a route, destination
// order is kept. The first route that names a destination wins, duplicates
// across later routes are dropped. Route entries pointing at inactive or
// missing destinations are silently skipped.
func (r *Resolver) ResolveTargetsForEventName(ctx context.Context, eventName string) ([]model.Destination, error) {
	destinations, err := r.source.ListActiveDestinations(ctx)
	if err != nil {
		return nil, err
	}

	routes, err := r.source.ListActiveRoutes(ctx)
	if err != nil {
		return nil, err
	}

	if len(destinations) == 0 || len(routes) == 0 {
		return nil, nil
	}

	byKey := make(map[string]model.Destination, len(destinations))
	for _, d := range destinations {
		if d.TechnicalName == "" {
			continue
		}
		byKey[d.TechnicalName] = d
	}

	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].Priority < routes[j].Priority
	})

	var matched []model.Destination
	seen := make(map[string]struct{})

	for _, route := range routes {
		if !MatchEventPattern(route.EventPattern, eventName) {
			continue
		}

		for _, key := range route.TargetKeys {
			if _, dup := seen[key]; dup {
				continue
			}

			dest, ok := byKey[key]
			if !ok {
				continue
			}

			seen[key] = struct{}{}
			matched = append(matched, dest)
		}
	}

	return matched, nil
}

// MatchEventPattern reports whether an event name matches a route pattern.
// Patterns are globs: "*" matches any run of characters, matching is
// case-insensitive and anchored at both ends. An empty pattern or a bare
// "*" matches everything.
func MatchEventPattern(pattern, eventName string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || pattern == "*" {
		return true
	}

	quoted := regexp.QuoteMeta(pattern)
	quoted = strings.ReplaceAll(quoted, `\*`, `.*`)

	re, err := regexp.Compile(`(?i)^` + quoted + `$`)
	if err != nil {
		return false
	}

	return re.MatchString(eventName)
}
