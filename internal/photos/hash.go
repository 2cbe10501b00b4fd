// Package photos fingerprints, de-duplicates and categorizes uploaded photos.
package photos

import (
	"image"
	"image/color"
	"image/draw"
	"math/bits"

	"github.com/nfnt/resize"
)

const (
	// DefaultHashSize gives an 8x8 grid, i.e. 64 bits.
	DefaultHashSize = 8

	// DefaultThreshold is the Hamming distance below which two photos are duplicates.
	DefaultThreshold = 10
)

// Hash is a difference hash: one bit per grid cell, true when the cell is brighter
// than its right-hand neighbour.
type Hash []bool

// DifferenceHash converts img to grayscale, scales it to (size+1) x size and compares
// horizontally adjacent pixels. size <= 0 means DefaultHashSize.
func DifferenceHash(img image.Image, size int) Hash {
	if size <= 0 {
		size = DefaultHashSize
	}
	gray := toGray(img)
	scaled := resize.Resize(uint(size+1), uint(size), gray, resize.Bilinear)

	b := scaled.Bounds()
	h := make(Hash, 0, size*size)
	for y := b.Min.Y; y < b.Min.Y+size; y++ {
		for x := b.Min.X; x < b.Min.X+size; x++ {
			h = append(h, luminance(scaled.At(x, y)) > luminance(scaled.At(x+1, y)))
		}
	}
	return h
}

// Distance is the Hamming distance. Hashes of different length differ in every
// missing position.
func (h Hash) Distance(o Hash) int {
	n, d := len(h), 0
	if len(o) < n {
		n = len(o)
	}
	for i := 0; i < n; i++ {
		if h[i] != o[i] {
			d++
		}
	}
	if len(h) > len(o) {
		d += len(h) - len(o)
	} else {
		d += len(o) - len(h)
	}
	return d
}

// Hex packs the bits big-endian, mostly for logs and the MCP tool output.
func (h Hash) Hex() string {
	const digits = "0123456789abcdef"
	out := make([]byte, 0, (len(h)+3)/4)
	var nibble byte
	for i, bit := range h {
		nibble <<= 1
		if bit {
			nibble |= 1
		}
		if i%4 == 3 {
			out = append(out, digits[nibble])
			nibble = 0
		}
	}
	if rem := len(h) % 4; rem != 0 {
		nibble <<= uint(4 - rem)
		out = append(out, digits[nibble])
	}
	return string(out)
}

// Uint64 returns the hash as a 64-bit word when it has exactly 64 bits.
func (h Hash) Uint64() (uint64, bool) {
	if len(h) != 64 {
		return 0, false
	}
	var v uint64
	for _, bit := range h {
		v <<= 1
		if bit {
			v |= 1
		}
	}
	return v, true
}

// distance64 is the fast path used when both hashes fit a word.
func distance64(a, b uint64) int { return bits.OnesCount64(a ^ b) }

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

func luminance(c color.Color) uint32 {
	y := color.GrayModel.Convert(c).(color.Gray).Y
	return uint32(y)
}
