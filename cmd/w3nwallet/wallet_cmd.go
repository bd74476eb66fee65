package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/pilacorp/go-w3n-wallet/account"
	"github.com/pilacorp/go-w3n-wallet/did"
)

func (a *app) generateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate a new mnemonic and show its account and DID",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wallet, err := account.GenerateWallet()
			if err != nil {
				return err
			}

			a.printf("Mnemonic: %s\n", wallet.Mnemonic)
			a.printf("Address: %s\n", wallet.Address())
			a.printf("DID: %s\n", did.ToDID(a.cfg.Method, wallet.DIDAuth.GetAddress()))
			return nil
		},
	}
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <mnemonic>",
		Short: "Check the account of an existing mnemonic",
		Long:  "Check the account of an existing mnemonic. The words may be passed as one quoted argument or separately.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}

			res, err := sess.ImportWallet(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			a.printf("Address: %s\n", res.Address)
			if res.HasActivity {
				a.printf("Address exists with activity\n")
			} else {
				a.printf("Address exists but has no activity\n")
			}
			return nil
		},
	}
}

func (a *app) overviewCmd() *cobra.Command {
	var mnemonic string

	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Show the address, balance, DID and Web3 Name of a mnemonic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}

			res, err := sess.Overview(cmd.Context(), mnemonic)
			if err != nil {
				return err
			}

			a.printf("Address: %s\n", res.Address)
			a.printf("Balance: %s\n", res.BalanceText)
			a.printf("DID: %s\n", res.DIDURI)
			if res.DID == nil {
				a.printf("DID status: not anchored\n")
				return nil
			}
			a.printf("DID status: anchored\n")
			if res.Name == "" {
				a.printf("W3N: none\n")
			} else {
				a.printf("W3N: %s\n", res.Name)
			}
			return nil
		},
	}
	mnemonicFlag(cmd, &mnemonic, "mnemonic", "wallet mnemonic")

	return cmd
}

func (a *app) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address>",
		Short: "Show the balance of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}

			bal, err := sess.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			a.printf("Address: %s\n", bal.Address)
			a.printf("Balance: %s (%s)\n", bal.Text, bal.Free.String())
			a.printf("Nonce: %d\n", bal.Nonce)
			return nil
		},
	}
}

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <name>",
		Short: "Run the full claim flow with fresh issuer and holder accounts",
		Long: `Generate issuer and holder accounts, anchor the holder DID, claim the
name for it, anchor an issuer DID and issue a credential to the holder.
The flow's journal is printed as it was recorded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}

			res, err := sess.ClaimFlow(cmd.Context(), args[0])
			for _, e := range sess.Journal() {
				a.printf("%s\n", e.String())
			}
			if err != nil {
				return err
			}

			a.printf("\nIssuer mnemonic: %s\n", res.Issuer.Mnemonic)
			a.printf("Holder mnemonic: %s\n", res.Holder.Mnemonic)
			a.printf("Holder DID: %s\n", res.HolderDID.URI())
			a.printf("Also known as: %s\n", strings.Join(res.AlsoKnownAs, ", "))
			return printJSON(a.stdout, res.Credential)
		},
	}
}

// mnemonicFlag registers a required mnemonic flag.
func mnemonicFlag(cmd *cobra.Command, target *string, name, usage string) {
	cmd.Flags().StringVar(target, name, "", usage)
	_ = cmd.MarkFlagRequired(name)
}
