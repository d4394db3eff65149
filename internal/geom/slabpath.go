package geom

import "strings"

const base36Digits = "0123456789abcdefghijklmnopqrstuvwxyz"

// toBase36 renders a non-negative integer in base 36, zero-padded to
// width digits. Matches Python's numpy.base_repr(n, 36).zfill(width).
func toBase36(n, width int) string {
	if n == 0 {
		return strings.Repeat("0", width)
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{base36Digits[n%36]}, digits...)
		n /= 36
	}
	if len(digits) < width {
		digits = append([]byte(strings.Repeat("0", width-len(digits))), digits...)
	}
	return string(digits)
}

// SlabPath renders the interleaved base-36 directory path for a slab at
// (x, y), one path segment per digit position, deepest segment last:
// "x0y0/x1y1/.../xNyN" for pathDepth == N. Negative indexes are not
// supported; callers are expected to clamp slab ranges to the pyramid's
// non-negative extent before calling.
func SlabPath(x, y, pathDepth int) string {
	width := pathDepth + 1
	sx := toBase36(x, width)
	sy := toBase36(y, width)
	segs := make([]string, width)
	for i := 0; i < width; i++ {
		segs[i] = string(sx[i]) + string(sy[i])
	}
	return strings.Join(segs, "/")
}
