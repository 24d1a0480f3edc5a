package routing

import (
	"context"
	"testing"

	"github.com/fibhq/outbox-bridge/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	destinations []model.Destination
	routes       []model.Route
}

func (s *staticSource) ListActiveDestinations(context.Context) ([]model.Destination, error) {
	return s.destinations, nil
}

func (s *staticSource) ListActiveRoutes(context.Context) ([]model.Route, error) {
	return s.routes, nil
}

func dest(key string) model.Destination {
	return model.Destination{ID: "id-" + key, TechnicalName: key, Type: "null", Active: true}
}

func TestMatchEventPattern(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"order.*", "order.placed.v1", true},
		{"order.*", "customer.created.v1", false},
		{"*", "anything.at.all", true},
		{"", "anything.at.all", true},
		{"ORDER.*", "order.placed.v1", true},
		{"order.placed.v1", "Order.Placed.V1", true},
		{"order.placed.v1", "order.placed.v2", false},
		{"*.stock_changed.*", "catalog.product.stock_changed.v1", true},
		{"order.+", "order.x", false}, // "+" is a literal, not a meta char
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchEventPattern(tt.pattern, tt.name))
		})
	}
}

func TestResolveTargetsOrderAndDedup(t *testing.T) {
	src := &staticSource{
		destinations: []model.Destination{dest("wh-a"), dest("wh-b"), dest("queue")},
		routes: []model.Route{
			{EventPattern: "order.*", Priority: 100, Active: true, TargetKeys: []string{"queue", "wh-a"}},
			{EventPattern: "*", Priority: 50, Active: true, TargetKeys: []string{"wh-a", "wh-b"}},
		},
	}

	got, err := NewResolver(src).ResolveTargetsForEventName(context.Background(), "order.placed.v1")
	require.NoError(t, err)

	keys := make([]string, 0, len(got))
	for _, d := range got {
		keys = append(keys, d.TechnicalName)
	}

	// priority 50 route matches first, then the order route adds the queue;
	// wh-a is not duplicated.
	assert.Equal(t, []string{"wh-a", "wh-b", "queue"}, keys)
}

func TestResolveTargetsSkipsStaleKeys(t *testing.T) {
	src := &staticSource{
		destinations: []model.Destination{dest("wh-a")},
		routes: []model.Route{
			{EventPattern: "*", Priority: 10, Active: true, TargetKeys: []string{"gone", "wh-a"}},
		},
	}

	got, err := NewResolver(src).ResolveTargetsForEventName(context.Background(), "x.y")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "wh-a", got[0].TechnicalName)
}

func TestResolveTargetsNoMatch(t *testing.T) {
	src := &staticSource{
		destinations: []model.Destination{dest("wh-a")},
		routes: []model.Route{
			{EventPattern: "order.*", Priority: 10, Active: true, TargetKeys: []string{"wh-a"}},
		},
	}

	got, err := NewResolver(src).ResolveTargetsForEventName(context.Background(), "customer.created.v1")
	require.NoError(t, err)
	assert.Empty(t, got)
}
