package region

// Part selects a sub-region for Get. Three-digit values encode
// raster size, row and column: 522 is the middle cell of a 5x5 raster.
// A row equal to the raster size selects the whole column and a column
// equal to the raster size selects the whole row.
type Part int

const (
	MidVertical Part = iota + 1
	MidHorizontal
	MidBig

	TopLeftQuarter     Part = 200
	TopRightQuarter    Part = 201
	North              Part = 202 // upper half
	BottomLeftQuarter  Part = 210
	BottomRightQuarter Part = 211
	South              Part = 212 // lower half
	West               Part = 220 // left half
	East               Part = 221 // right half

	NorthWest Part = 300
	NorthMid  Part = 301
	NorthEast Part = 302
	WestMid   Part = 310
	MidThird  Part = 311
	EastMid   Part = 312
	SouthWest Part = 320
	SouthMid  Part = 321
	SouthEast Part = 322
)

// SetRaster divides the region into rows x cols cells and returns the
// top-left cell. Non-positive values clear the raster and return r.
func (r *Region) SetRaster(rows, cols int) *Region {
	if rows <= 0 || cols <= 0 {
		r.rows, r.cols = 0, 0
		return r
	}
	r.rows, r.cols = rows, cols
	return r.Cell(0, 0)
}

// SetRows rasters the region into n rows, keeping any column count.
func (r *Region) SetRows(n int) *Region {
	return r.SetRaster(n, max(r.cols, 1))
}

// SetCols rasters the region into n columns, keeping any row count.
func (r *Region) SetCols(n int) *Region {
	return r.SetRaster(max(r.rows, 1), n)
}

// Rows returns the raster row count, 0 when no raster is set.
func (r *Region) Rows() int { return r.rows }

// Cols returns the raster column count, 0 when no raster is set.
func (r *Region) Cols() int { return r.cols }

// RowHeight returns the height of a raster row, 0 without a raster.
func (r *Region) RowHeight() int {
	if r.rows == 0 {
		return 0
	}
	return r.h / r.rows
}

// ColWidth returns the width of a raster column, 0 without a raster.
func (r *Region) ColWidth() int {
	if r.cols == 0 {
		return 0
	}
	return r.w / r.cols
}

// span returns offset and length of cell i out of n along size. The
// last cell absorbs the remainder. Negative indexes count from the end
// and out of range indexes are clamped.
func span(size, n, i int) (int, int) {
	if i < 0 {
		i += n
	}
	i = min(max(i, 0), n-1)
	step := size / n
	if i == n-1 {
		return i * step, size - i*step
	}
	return i * step, step
}

// Row returns raster row i, or r itself when no raster is set.
func (r *Region) Row(i int) *Region {
	if r.rows == 0 {
		return r
	}
	off, h := span(r.h, r.rows, i)
	return r.derive(r.x, r.y+off, r.w, h)
}

// Col returns raster column i, or r itself when no raster is set.
func (r *Region) Col(i int) *Region {
	if r.cols == 0 {
		return r
	}
	off, w := span(r.w, r.cols, i)
	return r.derive(r.x+off, r.y, w, r.h)
}

// Cell returns the raster cell at (row, col), or r when no raster is set.
func (r *Region) Cell(row, col int) *Region {
	if r.rows == 0 || r.cols == 0 {
		return r
	}
	oy, h := span(r.h, r.rows, row)
	ox, w := span(r.w, r.cols, col)
	return r.derive(r.x+ox, r.y+oy, w, h)
}

// Get returns a named part of the region. Unknown parts return r.
// The receiver's own raster is not changed.
func (r *Region) Get(part Part) *Region {
	switch part {
	case MidVertical:
		return r.derive(r.x+r.w/4, r.y, r.w/2, r.h)
	case MidHorizontal:
		return r.derive(r.x, r.y+r.h/4, r.w, r.h/2)
	case MidBig:
		return r.derive(r.x+r.w/4, r.y+r.h/4, r.w/2, r.h/2)
	}
	if part < 200 || part > 999 {
		return r
	}
	size := int(part) / 100
	row := int(part) / 10 % 10
	col := int(part) % 10
	if row > size || col > size {
		return r
	}
	g := r.derive(r.x, r.y, r.w, r.h)
	g.rows, g.cols = size, size
	switch {
	case row == size && col == size:
		return r
	case row == size:
		return g.Col(col)
	case col == size:
		return g.Row(row)
	default:
		return g.Cell(row, col)
	}
}
