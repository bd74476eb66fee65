package main

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"

	"github.com/pilacorp/go-w3n-wallet/blockchain"
)

func (a *app) txCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Inspect transactions signed with --no-send",
	}
	cmd.AddCommand(a.txDecodeCmd())

	return cmd
}

func (a *app) txDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <raw-tx>",
		Short: "Decode a raw registry transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			tx, err := blockchain.TxFromHex(args[0])
			if err != nil {
				return err
			}

			from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(a.cfg.ChainID)), tx)
			if err != nil {
				return fmt.Errorf("failed to recover sender: %w", err)
			}

			method, err := blockchain.MethodName(tx.Data())
			if err != nil {
				return err
			}

			a.printf("TX_HASH=%s\n", tx.Hash().Hex())
			a.printf("FROM=%s\n", from.Hex())
			if tx.To() != nil {
				a.printf("TO=%s\n", tx.To().Hex())
			}
			a.printf("NONCE=%d\n", tx.Nonce())
			a.printf("METHOD=%s\n", method)
			return nil
		},
	}
}
