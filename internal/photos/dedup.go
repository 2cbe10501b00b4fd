package photos

import (
	"image"
	"sort"
)

// IndexSet is a set of photo indices.
type IndexSet map[int]struct{}

func (s IndexSet) Add(i int) { s[i] = struct{}{} }

func (s IndexSet) Has(i int) bool {
	_, ok := s[i]
	return ok
}

// Sorted returns the members in ascending order.
func (s IndexSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// FindDuplicates hashes every image and marks j as a duplicate whenever some earlier
// i has distance(h[i], h[j]) < threshold. The first occurrence always survives, so
// upload order decides which copy is kept. hashSize <= 0 means DefaultHashSize and
// threshold <= 0 means DefaultThreshold.
func FindDuplicates(imgs []image.Image, hashSize, threshold int) IndexSet {
	hashes := make([]Hash, len(imgs))
	for i, img := range imgs {
		hashes[i] = DifferenceHash(img, hashSize)
	}
	return DuplicatesFromHashes(hashes, threshold)
}

// DuplicatesFromHashes is FindDuplicates over precomputed hashes.
func DuplicatesFromHashes(hashes []Hash, threshold int) IndexSet {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	words := make([]uint64, len(hashes))
	packed := true
	for i, h := range hashes {
		w, ok := h.Uint64()
		if !ok {
			packed = false
			break
		}
		words[i] = w
	}

	dups := IndexSet{}
	for i := 0; i < len(hashes); i++ {
		for j := i + 1; j < len(hashes); j++ {
			var d int
			if packed {
				d = distance64(words[i], words[j])
			} else {
				d = hashes[i].Distance(hashes[j])
			}
			if d < threshold {
				dups.Add(j)
			}
		}
	}
	return dups
}
