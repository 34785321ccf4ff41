package core

import (
	"fmt"
	"hash/fnv"
	"strconv"
)

// Color is an RGB display colour.
type Color struct {
	R, G, B uint8
}

// Palette maps a category name to its display colour.
type Palette func(category string) Color

// DefaultPalette derives a stable colour from the category name, so a
// category keeps its colour across renders.
func DefaultPalette(category string) Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(category))
	sum := h.Sum32()
	return Color{
		R: uint8(sum>>16) % 255,
		G: uint8(sum>>8) % 255,
		B: uint8(sum) % 255,
	}
}

// Background is the translucent fill variant.
func (c Color) Background() string {
	return c.rgba(0.2)
}

// Border is the opaque outline variant.
func (c Color) Border() string {
	return c.rgba(1)
}

func (c Color) rgba(alpha float64) string {
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", c.R, c.G, c.B, strconv.FormatFloat(alpha, 'f', -1, 64))
}
