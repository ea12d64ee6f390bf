package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/trustledger/internal/adapters/ledger"
)

const keypairFileMode = 0o600

var errKeypairExists = errors.New("keypair file already exists")

// newKeygenCommand writes a fresh payer keypair in the file format the
// server's payer_keypair_path setting loads.
func newKeygenCommand() *cobra.Command {
	var (
		out   string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a payer keypair file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%w: %s", errKeypairExists, out)
			}

			_, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			kp := ledger.NewKeypair(priv)
			raw, err := json.Marshal(kp)
			if err != nil {
				return fmt.Errorf("encode keypair: %w", err)
			}
			if err := os.WriteFile(out, raw, keypairFileMode); err != nil {
				return fmt.Errorf("write keypair: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), kp.PublicKey().String())
			return err
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "payer.json", "Keypair file to write")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
