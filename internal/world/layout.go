package world

import (
	"errors"
	"fmt"
)

// ErrInvalidLayout is returned by Generate for layouts that cannot be built.
var ErrInvalidLayout = errors.New("invalid layout")

// Layout parameterises the static warehouse. Every dimension is in cells.
type Layout struct {
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	Resolution float64 `yaml:"resolution"`
	OriginX    float64 `yaml:"originX"`
	OriginY    float64 `yaml:"originY"`

	ShelfStart   int `yaml:"shelfStart"`
	ShelfSpacing int `yaml:"shelfSpacing"`
	ShelfWidth   int `yaml:"shelfWidth"`
	ShelfMargin  int `yaml:"shelfMargin"`

	PalletCount   int `yaml:"palletCount"`
	PalletSize    int `yaml:"palletSize"`
	PalletMarginX int `yaml:"palletMarginX"`
	PalletMarginY int `yaml:"palletMarginY"`

	Seed string `yaml:"seed"`
}

// DefaultLayout is the 20 m x 10 m warehouse with four shelf rows and twelve pallets.
func DefaultLayout() Layout {
	return Layout{
		Width:         200,
		Height:        100,
		Resolution:    0.10,
		ShelfStart:    30,
		ShelfSpacing:  40,
		ShelfWidth:    3,
		ShelfMargin:   10,
		PalletCount:   12,
		PalletSize:    10,
		PalletMarginX: 35,
		PalletMarginY: 15,
		Seed:          DefaultSeed,
	}
}

// Validate reports the first problem that would prevent Generate from
// building the layout.
func (l Layout) Validate() error {
	if l.Width < 3 || l.Height < 3 {
		return fmt.Errorf("%w: dimensions %dx%d below 3x3", ErrInvalidLayout, l.Width, l.Height)
	}
	if !(l.Resolution > 0) {
		return fmt.Errorf("%w: resolution must be positive, got %v", ErrInvalidLayout, l.Resolution)
	}
	if l.ShelfWidth > 0 {
		if l.ShelfSpacing <= 0 {
			return fmt.Errorf("%w: shelf spacing must be positive", ErrInvalidLayout)
		}
		if l.ShelfStart < 0 || l.ShelfStart+l.ShelfWidth > l.Width {
			return fmt.Errorf("%w: shelf at column %d outside grid", ErrInvalidLayout, l.ShelfStart)
		}
		if l.ShelfMargin < 0 || 2*l.ShelfMargin >= l.Height {
			return fmt.Errorf("%w: shelf margin %d leaves no rows", ErrInvalidLayout, l.ShelfMargin)
		}
	}
	if l.PalletCount < 0 {
		return fmt.Errorf("%w: negative pallet count", ErrInvalidLayout)
	}
	if l.PalletCount > 0 {
		if l.PalletSize <= 0 {
			return fmt.Errorf("%w: pallet size must be positive", ErrInvalidLayout)
		}
		if l.PalletMarginX >= l.Width-l.PalletMarginX || l.PalletMarginY >= l.Height-l.PalletMarginY {
			return fmt.Errorf("%w: pallet placement box is empty", ErrInvalidLayout)
		}
	}
	return nil
}

// Generate builds the static world for l. The result depends only on l.
func Generate(l Layout) (*Grid, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	grid, err := NewGrid(l.Width, l.Height, l.Resolution, Point{X: l.OriginX, Y: l.OriginY})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}

	if l.ShelfWidth > 0 {
		for x := l.ShelfStart; x < l.Width-l.ShelfStart; x += l.ShelfSpacing {
			fillRect(grid, x, l.ShelfMargin, x+l.ShelfWidth, l.Height-l.ShelfMargin)
		}
	}

	rng := NewDeterministicRNG(l.Seed, "pallets")
	half := l.PalletSize / 2
	for i := 0; i < l.PalletCount; i++ {
		cx := randomIntRange(rng, l.PalletMarginX, l.Width-l.PalletMarginX)
		cy := randomIntRange(rng, l.PalletMarginY, l.Height-l.PalletMarginY)
		fillRect(grid, cx-half, cy-half, cx-half+l.PalletSize, cy-half+l.PalletSize)
	}
	return grid, nil
}

// fillRect marks [x0,x1) x [y0,y1) occupied, clipped to the grid.
func fillRect(g *Grid, x0, y0, x1, y1 int) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			g.MarkOccupied(Cell{X: x, Y: y})
		}
	}
}
