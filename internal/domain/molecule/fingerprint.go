package molecule

import (
	"crypto/sha256"
	"encoding/binary"
	"math/bits"
)

// KindNGramFingerprint is the Descriptor kind produced by FingerprintToolkit.
const KindNGramFingerprint = "fingerprint:ngram"

// ─────────────────────────────────────────────────────────────────────────────
// Fingerprint Structure
// ─────────────────────────────────────────────────────────────────────────────

// Fingerprint is a packed bit vector descriptor: bit i lives in byte i/8 at
// position i%8.
type Fingerprint struct {
	Bits      []byte `json:"bits"`
	Length    int    `json:"length"`
	NumOnBits int    `json:"num_on_bits"`
}

// NewFingerprint constructs a Fingerprint from packed bit data.
func NewFingerprint(data []byte, length int) *Fingerprint {
	onBits := 0
	for _, b := range data {
		onBits += bits.OnesCount8(b)
	}
	return &Fingerprint{Bits: data, Length: length, NumOnBits: onBits}
}

// Kind implements Descriptor.
func (fp *Fingerprint) Kind() string { return KindNGramFingerprint }

// GetBit returns true if the bit at index is set.
func (fp *Fingerprint) GetBit(index int) bool {
	if index < 0 || index >= fp.Length {
		return false
	}
	return fp.Bits[index/8]&(1<<uint(index%8)) != 0
}

// Tanimoto returns |a∧b| / |a∨b|.  Fingerprints of different length, or two
// empty ones, compare as 0.
func Tanimoto(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.Length != b.Length {
		return 0
	}
	intersection, union := 0, 0
	for i := range a.Bits {
		intersection += bits.OnesCount8(a.Bits[i] & b.Bits[i])
		union += bits.OnesCount8(a.Bits[i] | b.Bits[i])
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func setBit(data []byte, index int) {
	data[index/8] |= 1 << uint(index%8)
}

func hashPath(path string) uint64 {
	sum := sha256.Sum256([]byte(path))
	return binary.BigEndian.Uint64(sum[:8])
}
