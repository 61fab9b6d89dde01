package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/obmonitor/pkg/api"
	"github.com/uhyunpark/obmonitor/pkg/app/core/instruction"
	"github.com/uhyunpark/obmonitor/pkg/app/core/record"
	"github.com/uhyunpark/obmonitor/pkg/app/monitor"
)

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a monitor account with room for --capacity records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSigner(cmd)
			if err != nil {
				return err
			}
			label, _ := cmd.Flags().GetString("label")
			capacity, _ := cmd.Flags().GetUint64("capacity")
			acct := monitor.DeriveAccount(s.Address(), label)

			resp, err := apiClient(cmd).SignAndSubmit(cmd.Context(), s, acct, &instruction.Initialize{Capacity: capacity})
			if err != nil {
				return err
			}
			return printReceipt(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().String("key", "", "Owner private key hex (or OBM_PRIVATE_KEY)")
	cmd.Flags().String("label", "default", "Account label")
	cmd.Flags().Uint64("capacity", 1000, "Maximum number of records")
	return cmd
}

func newRecordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Append one order-book event to an account",
		Example: `  monitorctl record --type placed --market SOL/USDC --price 100 --size 5 --direction bid
  monitorctl record --type order_cancelled --market BTC/USDC --price 50000 --size 1 --direction ask`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSigner(cmd)
			if err != nil {
				return err
			}
			acct, err := resolveAccount(cmd)
			if err != nil {
				return err
			}

			typ, _ := cmd.Flags().GetString("type")
			dir, _ := cmd.Flags().GetString("direction")
			r := record.Record{}
			if r.EventType, err = record.ParseEventType(typ); err != nil {
				return err
			}
			if r.Direction, err = record.ParseDirection(dir); err != nil {
				return err
			}
			r.Market, _ = cmd.Flags().GetString("market")
			r.Price, _ = cmd.Flags().GetUint64("price")
			r.Size, _ = cmd.Flags().GetUint64("size")
			r.Timestamp, _ = cmd.Flags().GetInt64("timestamp")
			if err := r.Validate(); err != nil {
				return err
			}

			resp, err := apiClient(cmd).SignAndSubmit(cmd.Context(), s, acct, &instruction.RecordEvent{Record: r})
			if err != nil {
				return err
			}
			return printReceipt(cmd.OutOrStdout(), resp)
		},
	}
	addAccountFlags(cmd)
	cmd.Flags().String("type", "placed", "Event type: placed|filled|cancelled")
	cmd.Flags().String("market", "", "Market identifier, at most 50 bytes")
	cmd.Flags().Uint64("price", 0, "Price in quote units")
	cmd.Flags().Uint64("size", 0, "Size in base units")
	cmd.Flags().String("direction", "bid", "Direction: bid|ask")
	cmd.Flags().Int64("timestamp", 0, "Unix seconds (0 = stamped by the node)")
	_ = cmd.MarkFlagRequired("market")
	return cmd
}

func printReceipt(w io.Writer, resp api.SubmitResponse) error {
	rc := resp.Receipt
	if rc == nil {
		fmt.Fprintf(w, "%s %s\n", resp.Status, resp.TxHash.Hex())
		return nil
	}
	fmt.Fprintf(w, "%s  %s  account=%s  nonce=%d  height=%d\n",
		rc.Kind, rc.Result, rc.Account.Hex(), rc.Nonce, rc.Height)
	if !rc.OK() {
		return fmt.Errorf("instruction rejected: %s", rc.Error)
	}
	if rc.Kind == instruction.TagRecordEvent.String() {
		fmt.Fprintf(w, "records: %d\n", rc.Count)
	}
	return nil
}
