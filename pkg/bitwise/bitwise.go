package bitwise

func Unset(n uint64, k int) uint64 {
	return (n & ^(1 << k)) // AND NOT
}

func Set(n uint64, k int) uint64 {
	return (n | (1 << k)) // OR
}

func IsSet(n uint64, k int) bool {
	return n&(1<<k) > 0
}

// Bitmap is a growable set of small non-negative integers packed into 64 bit words.
type Bitmap struct {
	words []uint64
}

func (b *Bitmap) Set(i uint32) {
	w := int(i / 64)
	for len(b.words) <= w {
		b.words = append(b.words, 0)
	}
	b.words[w] = Set(b.words[w], int(i%64))
}

func (b *Bitmap) Unset(i uint32) {
	w := int(i / 64)
	if w >= len(b.words) {
		return
	}
	b.words[w] = Unset(b.words[w], int(i%64))
}

func (b *Bitmap) IsSet(i uint32) bool {
	w := int(i / 64)
	if w >= len(b.words) {
		return false
	}
	return IsSet(b.words[w], int(i%64))
}
