package analyzer

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Chart renders values as a terminal plot of the given size. Values are
// sampled evenly to fit the width.
func Chart(title string, values []float64, width, height int) string {
	if len(values) == 0 || width < 1 || height < 2 {
		return "No data to display"
	}

	lo, hi := floats.Min(values), floats.Max(values)
	span := hi - lo
	if span == 0 {
		span = 1
	}
	lo -= span * 0.05
	hi += span * 0.05
	span = hi - lo

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", width))
	}

	step := len(values) / width
	if step == 0 {
		step = 1
	}
	for x := 0; x < width && x*step < len(values); x++ {
		y := int((values[x*step] - lo) / span * float64(height-1))
		if y >= 0 && y < height {
			grid[height-1-y][x] = '█'
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%.0f - %.0f)\n", title, lo, hi)
	sb.WriteString(strings.Repeat("─", width+2) + "\n")
	for _, row := range grid {
		sb.WriteRune('│')
		sb.WriteString(string(row))
		sb.WriteString("│\n")
	}
	sb.WriteString(strings.Repeat("─", width+2) + "\n")
	return sb.String()
}
