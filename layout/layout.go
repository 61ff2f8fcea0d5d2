// Package layout computes the tile geometry for rendering a changing number
// of conference participants. The column breakpoints are a visible UX
// contract (near-square grids, fewer columns at small counts for larger
// tiles), not an incidental detail.
package layout

import "math"

const (
	DefaultGap        = 8
	DefaultMaxColumns = 8
	DefaultMaxRows    = 8

	// fallback 16:9 tile when the container size is not yet known
	fallbackTileWidth  = 320
	fallbackTileHeight = 180
)

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Geometry struct {
	Cols       int `json:"cols"`
	Rows       int `json:"rows"`
	TileWidth  int `json:"tile_width"`
	TileHeight int `json:"tile_height"`
}

// Columns is the breakpoint table mapping participant count to column count.
func Columns(count, maxCols int) int {
	if maxCols < 1 {
		maxCols = DefaultMaxColumns
	}
	switch {
	case count <= 1:
		return 1
	case count <= 4:
		return 2
	case count <= 9:
		return 3
	case count <= 12:
		return 4
	}
	cols := int(math.Ceil(math.Sqrt(float64(count))))
	if cols > maxCols {
		cols = maxCols
	}
	return cols
}

// Grid computes the full tile geometry for a participant count inside a
// container. A zero container falls back to a fixed default tile.
func Grid(count int, container Size, gap, maxCols, maxRows int) Geometry {
	if maxRows < 1 {
		maxRows = DefaultMaxRows
	}
	cols := Columns(count, maxCols)
	rows := (count + cols - 1) / cols
	if rows > maxRows {
		rows = maxRows
	}
	g := Geometry{Cols: cols, Rows: rows}
	if rows == 0 || container.Width <= 0 || container.Height <= 0 {
		g.TileWidth = fallbackTileWidth
		g.TileHeight = fallbackTileHeight
		return g
	}
	g.TileWidth = (container.Width - gap*(cols-1)) / cols
	g.TileHeight = (container.Height - gap*(rows-1)) / rows
	return g
}
