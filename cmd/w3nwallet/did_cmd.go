package main

import (
	"github.com/spf13/cobra"

	"github.com/pilacorp/go-w3n-wallet/blockchain"
)

func (a *app) didCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "did",
		Short: "Create and resolve DIDs",
	}
	cmd.AddCommand(a.didCreateCmd(), a.didResolveCmd(), a.didAddAssertionCmd())

	return cmd
}

func (a *app) didCreateCmd() *cobra.Command {
	var mnemonic string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Anchor the DID of a mnemonic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}

			res, err := sess.CreateDID(cmd.Context(), mnemonic)
			if err != nil {
				return err
			}

			a.printf("DID_URI=%s\n", res.URI())
			return nil
		},
	}
	mnemonicFlag(cmd, &mnemonic, "mnemonic", "DID owner mnemonic")

	return cmd
}

func (a *app) didResolveCmd() *cobra.Command {
	var relationship string

	cmd := &cobra.Command{
		Use:   "resolve <did>",
		Short: "Print the document of a DID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rel blockchain.Relationship
			if relationship != "" {
				var err error
				if rel, err = blockchain.ParseRelationship(relationship); err != nil {
					return err
				}
			}

			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}

			doc, err := sess.ResolveDID(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if relationship == "" {
				return printJSON(a.stdout, doc)
			}
			for _, vm := range doc.Keys(rel) {
				a.printf("%s %s\n", vm.ID, vm.Type)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&relationship, "relationship", "", "only print the keys of this relationship (authentication or assertionMethod)")

	return cmd
}

func (a *app) didAddAssertionCmd() *cobra.Command {
	var mnemonic string

	cmd := &cobra.Command{
		Use:   "add-assertion",
		Short: "Set the assertion key of a DID so it can issue credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}

			res, err := sess.AddAssertion(cmd.Context(), mnemonic)
			if err != nil {
				return err
			}

			a.printf("DID_URI=%s\n", res.URI())
			for _, vm := range res.Document.Keys(blockchain.RelationshipAssertionMethod) {
				a.printf("Assertion method: %s\n", vm.ID)
			}
			return nil
		},
	}
	mnemonicFlag(cmd, &mnemonic, "mnemonic", "DID owner mnemonic")

	return cmd
}
