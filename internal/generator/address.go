package generator

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// hexAddress returns "0x" followed by 10 alphanumeric characters.
func hexAddress(rng *rand.Rand) string {
	b := make([]byte, 12)
	b[0], b[1] = '0', 'x'
	for i := 2; i < len(b); i++ {
		b[i] = alphanumeric[rng.IntN(len(alphanumeric))]
	}
	return string(b)
}

// base58Address derives an ed25519 public key from a random scalar and
// encodes its 32 compressed bytes in base58.
func base58Address(rng *rand.Rand) (string, error) {
	var seed [64]byte
	for i := 0; i < len(seed); i += 8 {
		binary.LittleEndian.PutUint64(seed[i:], rng.Uint64())
	}
	s, err := edwards25519.NewScalar().SetUniformBytes(seed[:])
	if err != nil {
		return "", fmt.Errorf("derive scalar: %w", err)
	}
	pub := new(edwards25519.Point).ScalarBaseMult(s)
	return base58.Encode(pub.Bytes()), nil
}

// IsOnCurve reports whether a base58 address decodes to a valid ed25519 point.
func IsOnCurve(address string) bool {
	raw, err := base58.Decode(address)
	if err != nil || len(raw) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}
