package ledger

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// maxTransactionSize is the packet limit for a serialized transaction.
const maxTransactionSize = 1232

// appendCompactU16 appends the shortvec length encoding.
func appendCompactU16(b []byte, n int) []byte {
	for {
		c := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

// memoMessage serializes a legacy message with one Memo instruction and the
// payer as the only signer.
func memoMessage(payer PublicKey, blockhash [32]byte, memo []byte) []byte {
	memoProgram := MustPublicKey(MemoProgramID)

	msg := make([]byte, 0, 3+1+64+32+8+len(memo))
	// header: 1 required signature, 0 readonly signed, 1 readonly unsigned
	msg = append(msg, 1, 0, 1)
	msg = appendCompactU16(msg, 2)
	msg = append(msg, payer[:]...)
	msg = append(msg, memoProgram[:]...)
	msg = append(msg, blockhash[:]...)

	msg = appendCompactU16(msg, 1)
	msg = append(msg, 1) // program id index
	msg = appendCompactU16(msg, 0)
	msg = appendCompactU16(msg, len(memo))
	msg = append(msg, memo...)
	return msg
}

// BuildMemoTransaction returns the signed wire transaction and its
// signature, which doubles as the transaction id.
func BuildMemoTransaction(payer *Keypair, blockhash string, memo []byte) ([]byte, string, error) {
	raw, err := base58.Decode(blockhash)
	if err != nil || len(raw) != 32 {
		return nil, "", fmt.Errorf("%w: blockhash %q", ErrInvalidAddress, blockhash)
	}
	var bh [32]byte
	copy(bh[:], raw)

	msg := memoMessage(payer.PublicKey(), bh, memo)
	sig := payer.Sign(msg)

	tx := make([]byte, 0, 1+len(sig)+len(msg))
	tx = appendCompactU16(tx, 1)
	tx = append(tx, sig...)
	tx = append(tx, msg...)
	if len(tx) > maxTransactionSize {
		return nil, "", fmt.Errorf("%w: %d bytes", ErrMemoTooLong, len(tx))
	}
	return tx, base58.Encode(sig), nil
}
