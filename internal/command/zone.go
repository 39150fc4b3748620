package command

import (
	"fmt"
	"strconv"
	"strings"
)

// Zone is an inclusive rectangle of cells, zero-indexed.
type Zone struct {
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
	Right  int `json:"right"`
}

// Valid reports whether the zone is non-empty and non-negative.
func (z Zone) Valid() bool {
	return z.Top >= 0 && z.Left >= 0 && z.Top <= z.Bottom && z.Left <= z.Right
}

// Contains reports whether the cell (col, row) is inside the zone.
func (z Zone) Contains(col, row int) bool {
	return col >= z.Left && col <= z.Right && row >= z.Top && row <= z.Bottom
}

// Overlaps reports whether the two zones share at least one cell.
func (z Zone) Overlaps(o Zone) bool {
	return z.Left <= o.Right && o.Left <= z.Right && z.Top <= o.Bottom && o.Top <= z.Bottom
}

// Bounds returns the (start, end) pair of the zone along dim.
func (z Zone) Bounds(dim Dimension) (start, end int) {
	if dim == DimensionCol {
		return z.Left, z.Right
	}
	return z.Top, z.Bottom
}

// WithBounds returns a copy of the zone with the (start, end) pair along dim
// replaced.
func (z Zone) WithBounds(dim Dimension, start, end int) Zone {
	if dim == DimensionCol {
		z.Left, z.Right = start, end
	} else {
		z.Top, z.Bottom = start, end
	}
	return z
}

// String returns the A1 notation of the zone ("B2" or "B2:C4").
func (z Zone) String() string {
	tl := ToXC(z.Left, z.Top)
	if z.Left == z.Right && z.Top == z.Bottom {
		return tl
	}
	return tl + ":" + ToXC(z.Right, z.Bottom)
}

// ColumnName converts a zero-based column index to letters (0 -> A, 26 -> AA).
func ColumnName(col int) string {
	var b []byte
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// ToXC converts zero-based coordinates to a cell reference.
func ToXC(col, row int) string {
	return ColumnName(col) + strconv.Itoa(row+1)
}

// ToCartesian converts a cell reference like "C7" to zero-based (col, row).
func ToCartesian(xc string) (col, row int, err error) {
	xc = strings.ToUpper(strings.TrimSpace(xc))
	i := 0
	col = 0
	for i < len(xc) && xc[i] >= 'A' && xc[i] <= 'Z' {
		col = col*26 + int(xc[i]-'A'+1)
		i++
	}
	if i == 0 || i == len(xc) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidReference, xc)
	}
	n, err := strconv.Atoi(xc[i:])
	if err != nil || n < 1 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidReference, xc)
	}
	return col - 1, n - 1, nil
}

// ParseZone parses "A1" or "A1:C3". Corners are normalized.
func ParseZone(ref string) (Zone, error) {
	parts := strings.Split(ref, ":")
	if len(parts) > 2 {
		return Zone{}, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	c1, r1, err := ToCartesian(parts[0])
	if err != nil {
		return Zone{}, err
	}
	c2, r2 := c1, r1
	if len(parts) == 2 {
		if c2, r2, err = ToCartesian(parts[1]); err != nil {
			return Zone{}, err
		}
	}
	return Zone{
		Top:    min(r1, r2),
		Bottom: max(r1, r2),
		Left:   min(c1, c2),
		Right:  max(c1, c2),
	}, nil
}

// MustZone is ParseZone for literals; it panics on malformed input.
func MustZone(ref string) Zone {
	z, err := ParseZone(ref)
	if err != nil {
		panic(err)
	}
	return z
}
