package ledger

import (
	"encoding/binary"
	"time"

	"github.com/okian/trustledger/internal/domain/model"
)

// Trust score account layout, little-endian:
// owner:32 | baseScore:u16 | total:u32 | positive:u32 | streak:u16 | lastActive:i64
const (
	offOwner      = 0
	offBaseScore  = 32
	offTotal      = 34
	offPositive   = 38
	offStreak     = 42
	offLastActive = 44

	// AccountSize is the minimum decodable account length.
	AccountSize = 52
)

// DecodeAccount parses raw account data. Data shorter than AccountSize is
// treated as absent.
func DecodeAccount(identity string, data []byte) (model.ReputationRecord, bool) {
	if len(data) < AccountSize {
		return model.ReputationRecord{}, false
	}
	le := binary.LittleEndian
	rec := model.ReputationRecord{
		Identity:             identity,
		BaseScore:            int(le.Uint16(data[offBaseScore:])),
		TotalInteractions:    le.Uint32(data[offTotal:]),
		PositiveInteractions: le.Uint32(data[offPositive:]),
		LearningStreak:       le.Uint16(data[offStreak:]),
	}
	if ts := int64(le.Uint64(data[offLastActive:])); ts > 0 {
		rec.LastActive = time.Unix(ts, 0)
	}
	return rec, true
}

// EncodeAccount is the inverse of DecodeAccount.
func EncodeAccount(owner PublicKey, rec model.ReputationRecord) []byte {
	data := make([]byte, AccountSize)
	le := binary.LittleEndian
	copy(data[offOwner:], owner[:])
	le.PutUint16(data[offBaseScore:], uint16(model.ClampBaseScore(rec.BaseScore)))
	le.PutUint32(data[offTotal:], rec.TotalInteractions)
	le.PutUint32(data[offPositive:], rec.PositiveInteractions)
	le.PutUint16(data[offStreak:], rec.LearningStreak)
	if !rec.LastActive.IsZero() {
		le.PutUint64(data[offLastActive:], uint64(rec.LastActive.Unix()))
	}
	return data
}
