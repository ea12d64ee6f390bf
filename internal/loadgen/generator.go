package loadgen

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/okian/trustledger/internal/adapters/ledger"
	"github.com/okian/trustledger/internal/domain/model"
	"github.com/okian/trustledger/pkg/logger"
)

const maxQuality = 100

var interactionTypes = []model.InteractionType{
	model.InteractionMatch,
	model.InteractionChat,
	model.InteractionHelpful,
	model.InteractionShare,
}

// randomInt returns a uniform value in [0, n) using crypto/rand.
func randomInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// generateWallets creates n fresh ed25519 identities encoded as addresses.
func generateWallets(n int) ([]string, error) {
	wallets := make([]string, n)
	for i := range wallets {
		pub, _, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate wallet %d: %w", i, err)
		}
		var pk ledger.PublicKey
		copy(pk[:], pub)
		wallets[i] = pk.String()
	}
	return wallets, nil
}

// generateInteractions spreads cfg.NumInteractions over cfg.Identities
// wallets with random types and quality scores.
func generateInteractions(ctx context.Context, cfg *Config, stats *Stats) ([]Interaction, error) {
	logger.Get().Info(ctx, "generating interactions",
		logger.Int("interactions", cfg.NumInteractions),
		logger.Int("identities", cfg.Identities))

	wallets, err := generateWallets(cfg.Identities)
	if err != nil {
		return nil, err
	}

	out := make([]Interaction, cfg.NumInteractions)
	for i := range out {
		out[i] = Interaction{
			WalletAddress:   wallets[i%len(wallets)],
			InteractionType: string(interactionTypes[randomInt(len(interactionTypes))]),
			QualityScore:    randomInt(maxQuality + 1),
		}
	}
	stats.Generated = len(out)
	return out, nil
}
