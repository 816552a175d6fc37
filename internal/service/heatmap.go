package service

import (
	"math"
	"sort"

	"github.com/de3sec/pagesight/internal/models"
)

// CellSize is the heatmap grid pitch in pixels.
const CellSize = 20

// BinClicks snaps each click to the nearest grid cell and accumulates
// per-cell counts. Intensity is normalized against the densest cell of the
// input, so it is relative to the (possibly capped) result set, not to all
// traffic ever recorded.
func BinClicks(clicks []models.ClickPoint) []models.HeatmapCell {
	if len(clicks) == 0 {
		return nil
	}

	type cell struct{ x, y int }
	counts := make(map[cell]int)
	for _, c := range clicks {
		k := cell{
			x: int(math.Round(float64(c.X)/CellSize)) * CellSize,
			y: int(math.Round(float64(c.Y)/CellSize)) * CellSize,
		}
		counts[k]++
	}

	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}

	out := make([]models.HeatmapCell, 0, len(counts))
	for k, n := range counts {
		out = append(out, models.HeatmapCell{
			X:         k.x,
			Y:         k.y,
			Count:     n,
			Intensity: float64(n) / float64(max),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})
	return out
}
