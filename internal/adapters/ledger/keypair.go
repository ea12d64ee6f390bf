package ledger

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
)

// Keypair is the payer's signing credential. It is loaded once at startup
// and read-only afterwards.
type Keypair struct {
	priv ed25519.PrivateKey
	pub  PublicKey
}

// LoadKeypair reads a keypair file: a JSON array of the 64 secret key bytes.
func LoadKeypair(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair: %w", err)
	}
	return ParseKeypair(raw)
}

// ParseKeypair decodes the JSON byte-array keypair format.
func ParseKeypair(raw []byte) (*Keypair, error) {
	// []byte would expect base64, so decode through []int.
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeypair, err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKeypair, ed25519.PrivateKeySize, len(ints))
	}
	secret := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: byte %d out of range", ErrInvalidKeypair, i)
		}
		secret[i] = byte(v)
	}
	return NewKeypair(ed25519.NewKeyFromSeed(secret[:ed25519.SeedSize])), nil
}

// NewKeypair wraps an existing private key.
func NewKeypair(priv ed25519.PrivateKey) *Keypair {
	kp := &Keypair{priv: priv}
	copy(kp.pub[:], priv.Public().(ed25519.PublicKey))
	return kp
}

// PublicKey returns the payer address.
func (k *Keypair) PublicKey() PublicKey { return k.pub }

// Sign signs msg with the secret key.
func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// MarshalJSON encodes the keypair in the file format LoadKeypair reads.
func (k *Keypair) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(k.priv))
	for i, b := range k.priv {
		ints[i] = int(b)
	}
	return json.Marshal(ints)
}
