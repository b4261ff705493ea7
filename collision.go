package main

import "math"

// OverlapsAny reports whether the rectangle [x, x+w) x [y, y+h) covers any
// grid cell whose tile code is in codes. Cells outside the grid are skipped.
//
// The covered range uses floor(x/TileSize) for the minimum corner and
// floor((x+extent-1)/TileSize) for the maximum. The -1 keeps a box whose far
// edge sits exactly on a cell boundary from claiming the next cell, while a
// box anywhere inside a one-tile-thin platform still registers it.
func OverlapsAny(x, y, w, h float64, codes ...int) bool {
	left := int(math.Floor(x / TileSize))
	right := int(math.Floor((x + w - 1) / TileSize))
	top := int(math.Floor(y / TileSize))
	bottom := int(math.Floor((y + h - 1) / TileSize))

	for row := top; row <= bottom; row++ {
		if row < 0 || row >= MapRows {
			continue
		}
		for col := left; col <= right; col++ {
			if col < 0 || col >= MapCols {
				continue
			}
			tile := mapLayout[row][col]
			for _, c := range codes {
				if tile == c {
					return true
				}
			}
		}
	}
	return false
}
