package main

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/uhyunpark/obmonitor/pkg/app/monitor"
	"github.com/uhyunpark/obmonitor/pkg/crypto"
)

// addAccountFlags registers the flags that pick an account: either an explicit
// --account or the owner key/address plus --label.
func addAccountFlags(cmd *cobra.Command) {
	cmd.Flags().String("account", "", "Account address (overrides owner/label)")
	cmd.Flags().String("owner", "", "Owner address used with --label")
	cmd.Flags().String("label", "default", "Account label")
	cmd.Flags().String("key", "", "Owner private key hex (or OBM_PRIVATE_KEY)")
}

func loadSigner(cmd *cobra.Command) (*crypto.Signer, error) {
	key, _ := cmd.Flags().GetString("key")
	if key == "" {
		key = envOr("OBM_PRIVATE_KEY", "")
	}
	if key == "" {
		return nil, errors.New("no private key: pass --key or set OBM_PRIVATE_KEY")
	}
	return crypto.FromPrivateKeyHex(key)
}

// resolveAccount returns the account the command targets. The signer is
// loaded only when needed to derive the address.
func resolveAccount(cmd *cobra.Command) (common.Address, error) {
	if raw, _ := cmd.Flags().GetString("account"); raw != "" {
		if !common.IsHexAddress(raw) {
			return common.Address{}, fmt.Errorf("invalid --account %q", raw)
		}
		return common.HexToAddress(raw), nil
	}
	label, _ := cmd.Flags().GetString("label")
	if raw, _ := cmd.Flags().GetString("owner"); raw != "" {
		if !common.IsHexAddress(raw) {
			return common.Address{}, fmt.Errorf("invalid --owner %q", raw)
		}
		return monitor.DeriveAccount(common.HexToAddress(raw), label), nil
	}
	s, err := loadSigner(cmd)
	if err != nil {
		return common.Address{}, fmt.Errorf("need --account, --owner or a key: %w", err)
	}
	return monitor.DeriveAccount(s.Address(), label), nil
}

func newKeygenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an owner key and show its default account address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			label, _ := cmd.Flags().GetString("label")
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Address:     %s\n", s.Address().Hex())
			fmt.Fprintf(out, "Private key: %s (keep secret)\n", s.PrivateKeyHex())
			fmt.Fprintf(out, "Account:     %s (label %q)\n", monitor.DeriveAccount(s.Address(), label).Hex(), label)
			return nil
		},
	}
	cmd.Flags().String("label", "default", "Account label")
	return cmd
}

func newAccountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Show an account header, or list all accounts with --all",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := apiClient(cmd)
			out := cmd.OutOrStdout()

			if all, _ := cmd.Flags().GetBool("all"); all {
				accounts, err := c.Accounts(cmd.Context())
				if err != nil {
					return err
				}
				for _, a := range accounts {
					fmt.Fprintf(out, "%s  owner=%s  %d/%d\n", a.Address.Hex(), a.Owner.Hex(), a.Count, a.Capacity)
				}
				return nil
			}

			addr, err := resolveAccount(cmd)
			if err != nil {
				return err
			}
			info, err := c.Account(cmd.Context(), addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Account:   %s\n", info.Address.Hex())
			fmt.Fprintf(out, "Owner:     %s\n", info.Owner.Hex())
			fmt.Fprintf(out, "Capacity:  %d\n", info.Capacity)
			fmt.Fprintf(out, "Records:   %d (%d free)\n", info.Count, info.Remaining)
			fmt.Fprintf(out, "Size:      %d bytes\n", info.Size)
			return nil
		},
	}
	addAccountFlags(cmd)
	cmd.Flags().Bool("all", false, "List every account on the node")
	return cmd
}
