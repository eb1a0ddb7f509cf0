package main

import (
	"encoding/json"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/spf13/cobra"
)

var keygenShowWIF bool

// keygenCmd generates Neo N3 keys for guardian, oracle or admin principals.
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a Neo N3 key pair",
	Long: `Generate a fresh secp256r1 key pair and print its Neo N3 address.

The address can be used as a vault principal when vault.neo_addresses is
enabled. The WIF private key is only printed with --wif.`,
	RunE: runKeygen,
}

func init() {
	keygenCmd.Flags().BoolVar(&keygenShowWIF, "wif", false, "also print the WIF-encoded private key")
}

type keyOutput struct {
	Address   string `json:"address"`
	PublicKey string `json:"public_key"`
	WIF       string `json:"wif,omitempty"`
}

func generateKey(withWIF bool) (keyOutput, error) {
	priv, err := keys.NewPrivateKey()
	if err != nil {
		return keyOutput{}, fmt.Errorf("generate key: %w", err)
	}
	out := keyOutput{
		Address:   priv.Address(),
		PublicKey: priv.PublicKey().StringCompressed(),
	}
	if withWIF {
		out.WIF = priv.WIF()
	}
	return out, nil
}

func runKeygen(cmd *cobra.Command, _ []string) error {
	out, err := generateKey(keygenShowWIF)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
