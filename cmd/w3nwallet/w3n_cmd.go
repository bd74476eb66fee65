package main

import (
	"github.com/spf13/cobra"
)

func (a *app) w3nCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "w3n",
		Short: "Claim, look up and release Web3 Names",
	}
	cmd.AddCommand(a.w3nClaimCmd(), a.w3nLookupCmd(), a.w3nOwnerCmd(), a.w3nReleaseCmd())

	return cmd
}

func (a *app) w3nClaimCmd() *cobra.Command {
	var mnemonic string

	cmd := &cobra.Command{
		Use:   "claim <name>",
		Short: "Claim a name for the DID of a mnemonic and receive a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}

			res, err := sess.ClaimForMnemonic(cmd.Context(), mnemonic, args[0])
			if err != nil {
				return err
			}

			a.printf("W3N claimed: %s\n", args[0])
			a.printf("Holder DID: %s\n", res.HolderDID.URI())
			a.printf("Issuer DID: %s\n", res.IssuerDID.URI())
			return printJSON(a.stdout, res.Credential)
		},
	}
	mnemonicFlag(cmd, &mnemonic, "mnemonic", "holder mnemonic")

	return cmd
}

func (a *app) w3nLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <did>",
		Short: "Show the name linked to a DID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}

			name, err := sess.LookupName(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if name == "" {
				a.printf("No W3N found\n")
			} else {
				a.printf("Found W3N: %s\n", name)
			}
			return nil
		},
	}
}

func (a *app) w3nOwnerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "owner <name>",
		Short: "Show the DID owning a name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}

			owner, err := sess.NameOwner(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if owner == "" {
				a.printf("%s is unclaimed\n", args[0])
			} else {
				a.printf("%s is owned by %s\n", args[0], owner)
			}
			return nil
		},
	}
}

func (a *app) w3nReleaseCmd() *cobra.Command {
	var mnemonic string

	cmd := &cobra.Command{
		Use:   "release",
		Short: "Release the name of the DID of a mnemonic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}

			name, err := sess.ReleaseName(cmd.Context(), mnemonic)
			if err != nil {
				return err
			}

			a.printf("W3N released: %s\n", name)
			return nil
		},
	}
	mnemonicFlag(cmd, &mnemonic, "mnemonic", "holder mnemonic")

	return cmd
}
