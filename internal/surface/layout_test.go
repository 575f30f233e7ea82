package surface

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgchart/internal/domain"
)

func nodes(ids ...string) []domain.Node {
	out := make([]domain.Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, *domain.NewNode(id, id, domain.OriginPlaceholder))
	}
	return out
}

func TestPresetGridOnly(t *testing.T) {
	p := NewPreset(nil, 100)

	got, err := p.Place(context.Background(), nodes("a", "b", "c", "d", "e"), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.Point{X: 0, Y: 0}, got["a"])
	assert.Equal(t, domain.Point{X: 100, Y: 0}, got["b"])
	assert.Equal(t, domain.Point{X: 200, Y: 0}, got["c"])
	assert.Equal(t, domain.Point{X: 0, Y: 100}, got["d"])
	assert.Equal(t, domain.Point{X: 100, Y: 100}, got["e"])
}

func TestPresetPrefersStoredThenCurrent(t *testing.T) {
	stored := func(context.Context) (map[string]domain.Point, error) {
		return map[string]domain.Point{"a": {X: 10, Y: 20}}, nil
	}
	p := NewPreset(stored, 50)
	current := map[string]domain.Point{"a": {X: 999, Y: 999}, "b": {X: 5, Y: 300}}

	got, err := p.Place(context.Background(), nodes("a", "b", "c"), current)
	require.NoError(t, err)

	assert.Equal(t, domain.Point{X: 10, Y: 20}, got["a"])
	assert.Equal(t, domain.Point{X: 5, Y: 300}, got["b"])
	// unplaced nodes go below the lowest placed node
	assert.Equal(t, domain.Point{X: 0, Y: 350}, got["c"])
}

func TestPresetSourceError(t *testing.T) {
	p := NewPreset(func(context.Context) (map[string]domain.Point, error) {
		return nil, errors.New("db down")
	}, 0)

	_, err := p.Place(context.Background(), nodes("a"), nil)

	assert.ErrorContains(t, err, "db down")
}
