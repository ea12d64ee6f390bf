package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/trustledger/internal/adapters/http/api"
	"github.com/okian/trustledger/internal/adapters/http/swagger"
	"github.com/okian/trustledger/internal/adapters/ledger"
	"github.com/okian/trustledger/internal/config"
	"github.com/okian/trustledger/pkg/logger"
)

func init() {
	if err := logger.InitWithWriter(io.Discard, "text"); err != nil {
		panic(err)
	}
}

// deadNode answers every RPC with 503 so nothing leaves the test process.
func deadNode() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
}

func writeKeypair(t *testing.T) string {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 11
	raw, err := json.Marshal(ledger.NewKeypair(ed25519.NewKeyFromSeed(seed)))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "api-payer.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("TRUST_ADDR", ":8080")
	t.Setenv("TRUST_TRANSPORT", "direct")
	t.Setenv("TRUST_RPC_URLS", "http://a.example, http://b.example")
	t.Setenv("TRUST_RECEIPT_CAPACITY", "42")

	convey.Convey("Given configuration in the environment", t, func() {
		cfg, err := config.Load(context.Background())

		convey.Convey("Then it should override the defaults", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.Transport, convey.ShouldEqual, config.TransportDirect)
			convey.So(cfg.RPCURLs, convey.ShouldResemble, []string{"http://a.example", "http://b.example"})
			convey.So(cfg.ReceiptCapacity, convey.ShouldEqual, 42)
			convey.So(cfg.TaskPacingMS, convey.ShouldEqual, 100)
		})
	})
}

func TestNewService(t *testing.T) {
	node := deadNode()
	defer node.Close()

	convey.Convey("Given a configuration pointing at an unreachable ledger", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		cfg.RPCURLs = []string{node.URL}
		cfg.CLIPath = filepath.Join(t.TempDir(), "no-such-solana")
		cfg.PayerKeypairPath = filepath.Join(t.TempDir(), "missing.json")
		cfg.ReadTimeoutMS = 500

		convey.Convey("When the signing credential is missing", func() {
			cfg.Transport = config.TransportDirect
			svc, err := newService(ctx, cfg, logger.Get())
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer func() { _ = svc.Stop(ctx) }()

			convey.Convey("Then the service should still serve the API", func() {
				mux := http.NewServeMux()
				swagger.Register(ctx, mux)
				api.NewServer(svc, svc).Register(ctx, mux)

				seed := make([]byte, ed25519.SeedSize)
				var pk ledger.PublicKey
				copy(pk[:], ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey))
				wallet := pk.String()

				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/trust-score",
					strings.NewReader(`{"walletAddress":"`+wallet+`","interactionType":"chat","qualityScore":85}`)))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, `"newScore":653`)

				w = httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/trust-score?wallet="+wallet, http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, `"source":"cache"`)

				w = httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api-docs", http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			})

			convey.Convey("And the configured transport should be reported", func() {
				stats := svc.GetStats(ctx)
				convey.So(stats["transport"], convey.ShouldEqual, ledger.StrategyDirect)
				reachable, ok := stats["ledger"].(map[string]bool)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(reachable["rpc"], convey.ShouldBeFalse)
				convey.So(reachable["cli"], convey.ShouldBeFalse)
			})
		})

		convey.Convey("When a signing credential is present", func() {
			cfg.PayerKeypairPath = writeKeypair(t)
			svc, err := newService(ctx, cfg, logger.Get())
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc.GetStats(ctx)["transport"], convey.ShouldEqual, ledger.StrategyShim)
		})

		convey.Convey("When the program id is not an address", func() {
			cfg.ProgramID = "nope"
			_, err := newService(ctx, cfg, logger.Get())
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}
