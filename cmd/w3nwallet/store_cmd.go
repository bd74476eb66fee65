package main

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

func (a *app) accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List the accounts stored in the wallet database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			accounts, err := st.ListAccounts(cmd.Context())
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				a.printf("No stored accounts\n")
				return nil
			}

			for _, acct := range accounts {
				a.printf("%s %s\n", acct.Address, acct.Label)
			}
			return nil
		},
	}
	cmd.AddCommand(a.accountsExportCmd())

	return cmd
}

func (a *app) accountsExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <address>",
		Short: "Decrypt a stored account and print its private key",
		Long: `Decrypt a stored account with W3N_PASSPHRASE and print its private key.
The key can be used as W3N_SUBMITTER_KEY.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return errors.New("invalid address " + args[0])
			}
			if a.cfg.Passphrase == "" {
				return errors.New("W3N_PASSPHRASE is required to decrypt stored keys")
			}

			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			key, err := st.LoadAccount(cmd.Context(), args[0], a.cfg.Passphrase)
			if err != nil {
				return err
			}

			a.printf("ADDRESS=%s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
			a.printf("PRIVATE_KEY=%s\n", hexutil.Encode(crypto.FromECDSA(key)))
			return nil
		},
	}
}

func (a *app) namesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "names",
		Short: "List the Web3 Names claimed from this wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			names, err := st.ListNames(cmd.Context())
			if err != nil {
				return err
			}
			if len(names) == 0 {
				a.printf("No claimed names\n")
				return nil
			}

			for _, n := range names {
				a.printf("%s %s\n", n.Name, n.DID)
			}
			return nil
		},
	}
}
