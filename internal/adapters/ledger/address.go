package ledger

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known program ids.
const (
	DefaultTrustScoreProgramID = "3FWDkwEPfVVZmxXS4f3pDaJpg4qf7GL5ir89DtXSwAjR"
	MemoProgramID              = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"

	trustScoreSeed = "trust_score"
	pdaMarker      = "ProgramDerivedAddress"
	maxSeedLen     = 32
	maxSeeds       = 16
)

// PublicKey is a 32-byte ed25519 public key or program address.
type PublicKey [32]byte

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("%w: %q: %w", ErrInvalidAddress, s, err)
	}
	if len(raw) != len(pk) {
		return pk, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidAddress, s, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustPublicKey is ParsePublicKey for compile-time constants.
func MustPublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

func (p PublicKey) String() string {
	return base58.Encode(p[:])
}

// IsOnCurve reports whether b is a valid ed25519 point encoding.
func IsOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// CreateProgramAddress hashes seeds with the program id. The result must be
// off the ed25519 curve to be a valid program address.
func CreateProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, error) {
	var pk PublicKey
	if len(seeds) > maxSeeds {
		return pk, fmt.Errorf("%w: too many seeds", ErrNoPDA)
	}

	h := sha256.New()
	for _, s := range seeds {
		if len(s) > maxSeedLen {
			return pk, fmt.Errorf("%w: seed longer than %d bytes", ErrNoPDA, maxSeedLen)
		}
		h.Write(s)
	}
	h.Write(program[:])
	h.Write([]byte(pdaMarker))
	copy(pk[:], h.Sum(nil))

	if IsOnCurve(pk[:]) {
		return PublicKey{}, fmt.Errorf("%w: address on curve", ErrNoPDA)
	}
	return pk, nil
}

// FindProgramAddress searches bump seeds from 255 down and returns the first
// off-curve address.
func FindProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		pk, err := CreateProgramAddress(withBump, program)
		if err == nil {
			return pk, uint8(bump), nil
		}
	}
	return PublicKey{}, 0, ErrNoPDA
}

// TrustScoreAddress is the account holding identity's reputation record.
func TrustScoreAddress(program, identity PublicKey) (PublicKey, error) {
	pk, _, err := FindProgramAddress([][]byte{[]byte(trustScoreSeed), identity[:]}, program)
	return pk, err
}
