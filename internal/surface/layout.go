package surface

import (
	"context"
	"fmt"
	"math"

	"orgchart/internal/domain"
)

// Layout places nodes. current holds the positions nodes have on the surface
// right now; nodes missing from it have never been placed.
type Layout interface {
	Place(ctx context.Context, nodes []domain.Node, current map[string]domain.Point) (map[string]domain.Point, error)
}

// LayoutFunc adapts a function to Layout
type LayoutFunc func(ctx context.Context, nodes []domain.Node, current map[string]domain.Point) (map[string]domain.Point, error)

// Place implements Layout
func (f LayoutFunc) Place(ctx context.Context, nodes []domain.Node, current map[string]domain.Point) (map[string]domain.Point, error) {
	return f(ctx, nodes, current)
}

// PositionsFunc loads persisted node positions
type PositionsFunc func(ctx context.Context) (map[string]domain.Point, error)

// DefaultGridSpacing is the distance between fallback grid slots
const DefaultGridSpacing = 120.0

// Preset places nodes at their persisted positions, keeps nodes that are
// already on the surface where they are, and puts everything else on a grid
// below the placed nodes.
type Preset struct {
	positions PositionsFunc
	spacing   float64
}

// NewPreset creates a preset layout. positions may be nil.
func NewPreset(positions PositionsFunc, spacing float64) *Preset {
	if spacing <= 0 {
		spacing = DefaultGridSpacing
	}
	return &Preset{positions: positions, spacing: spacing}
}

// Place implements Layout
func (p *Preset) Place(ctx context.Context, nodes []domain.Node, current map[string]domain.Point) (map[string]domain.Point, error) {
	stored := map[string]domain.Point{}
	if p.positions != nil {
		var err error
		stored, err = p.positions(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load positions: %w", err)
		}
	}

	out := make(map[string]domain.Point, len(nodes))
	var unplaced []string
	maxY := math.Inf(-1)
	for _, n := range nodes {
		pt, ok := stored[n.ID]
		if !ok {
			pt, ok = current[n.ID]
		}
		if !ok {
			unplaced = append(unplaced, n.ID)
			continue
		}
		out[n.ID] = pt
		maxY = math.Max(maxY, pt.Y)
	}

	originY := 0.0
	if len(out) > 0 {
		originY = maxY + p.spacing
	}
	cols := int(math.Ceil(math.Sqrt(float64(len(unplaced)))))
	for i, id := range unplaced {
		out[id] = domain.Point{
			X: float64(i%cols) * p.spacing,
			Y: originY + float64(i/cols)*p.spacing,
		}
	}
	return out, nil
}
