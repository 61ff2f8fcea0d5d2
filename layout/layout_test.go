package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumns(t *testing.T) {
	assert.Equal(t, 1, Columns(0, DefaultMaxColumns))
	assert.Equal(t, 1, Columns(1, DefaultMaxColumns))
	assert.Equal(t, 2, Columns(2, DefaultMaxColumns))
	assert.Equal(t, 2, Columns(4, DefaultMaxColumns))
	assert.Equal(t, 3, Columns(5, DefaultMaxColumns))
	assert.Equal(t, 3, Columns(9, DefaultMaxColumns))
	assert.Equal(t, 4, Columns(10, DefaultMaxColumns))
	assert.Equal(t, 4, Columns(12, DefaultMaxColumns))
	assert.Equal(t, 4, Columns(13, DefaultMaxColumns)) // ceil(sqrt(13))
	assert.Equal(t, 5, Columns(25, DefaultMaxColumns))
	assert.Equal(t, 8, Columns(100, DefaultMaxColumns)) // capped
	assert.Equal(t, 6, Columns(100, 6))
}

func TestGridRows(t *testing.T) {
	g := Grid(1, Size{Width: 800, Height: 600}, DefaultGap, DefaultMaxColumns, DefaultMaxRows)
	assert.Equal(t, 1, g.Cols)
	assert.Equal(t, 1, g.Rows)

	g = Grid(2, Size{Width: 800, Height: 600}, DefaultGap, DefaultMaxColumns, DefaultMaxRows)
	assert.Equal(t, 2, g.Cols)
	assert.Equal(t, 1, g.Rows)

	g = Grid(3, Size{Width: 800, Height: 600}, DefaultGap, DefaultMaxColumns, DefaultMaxRows)
	assert.Equal(t, 2, g.Cols)
	assert.Equal(t, 2, g.Rows)

	g = Grid(5, Size{Width: 800, Height: 600}, DefaultGap, DefaultMaxColumns, DefaultMaxRows)
	assert.Equal(t, 3, g.Cols)
	assert.Equal(t, 2, g.Rows)

	g = Grid(9, Size{Width: 800, Height: 600}, DefaultGap, DefaultMaxColumns, DefaultMaxRows)
	assert.Equal(t, 3, g.Cols)
	assert.Equal(t, 3, g.Rows)
}

func TestGridTileSize(t *testing.T) {
	// 4 tiles in 800x600 with an 8px gap: 2x2, (800-8)/2 x (600-8)/2
	g := Grid(4, Size{Width: 800, Height: 600}, 8, DefaultMaxColumns, DefaultMaxRows)
	assert.Equal(t, 2, g.Cols)
	assert.Equal(t, 2, g.Rows)
	assert.Equal(t, 396, g.TileWidth)
	assert.Equal(t, 296, g.TileHeight)
}

func TestGridFallback(t *testing.T) {
	g := Grid(4, Size{}, DefaultGap, DefaultMaxColumns, DefaultMaxRows)
	assert.Equal(t, 320, g.TileWidth)
	assert.Equal(t, 180, g.TileHeight)

	g = Grid(0, Size{Width: 800, Height: 600}, DefaultGap, DefaultMaxColumns, DefaultMaxRows)
	assert.Equal(t, 0, g.Rows)
	assert.Equal(t, 320, g.TileWidth)
	assert.Equal(t, 180, g.TileHeight)
}

func TestGridMaxRows(t *testing.T) {
	g := Grid(100, Size{Width: 800, Height: 600}, DefaultGap, DefaultMaxColumns, 4)
	assert.Equal(t, 8, g.Cols)
	assert.Equal(t, 4, g.Rows)
}

func TestFocused(t *testing.T) {
	s := NewState()
	assert.Equal(t, ModeGrid, s.Mode())

	// grid never focuses, not even a pinned participant
	s.Pin("PJSIP/alice-1")
	assert.Equal(t, "", s.Focused("PJSIP/bob-1"))

	s.SetMode(ModeSpeaker)
	// pin wins over the active speaker
	assert.Equal(t, "PJSIP/alice-1", s.Focused("PJSIP/bob-1"))
	s.Unpin()
	assert.Equal(t, "PJSIP/bob-1", s.Focused("PJSIP/bob-1"))

	s.SetMode(ModeSidebar)
	assert.Equal(t, "PJSIP/bob-1", s.Focused("PJSIP/bob-1"))

	// spotlight only ever focuses an explicit pin
	s.SetMode(ModeSpotlight)
	assert.Equal(t, "", s.Focused("PJSIP/bob-1"))
	s.Pin("PJSIP/alice-1")
	assert.Equal(t, "PJSIP/alice-1", s.Focused("PJSIP/bob-1"))

	// invalid modes are ignored
	s.SetMode(Mode("cinema"))
	assert.Equal(t, ModeSpotlight, s.Mode())
}
