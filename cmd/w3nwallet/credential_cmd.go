package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pilacorp/go-w3n-wallet/session"
)

func (a *app) credentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Issue and verify credentials",
	}
	cmd.AddCommand(a.credentialIssueCmd(), a.credentialVerifyCmd(), a.credentialListCmd())

	return cmd
}

func (a *app) credentialIssueCmd() *cobra.Command {
	var (
		req    session.IssueRequest
		claims []string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a credential from an issuer DID with an assertion key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if req.Claims, err = parseClaims(claims); err != nil {
				return err
			}

			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}

			res, err := sess.IssueCredential(cmd.Context(), req)
			if err != nil {
				return err
			}

			if req.JWT {
				a.printf("%s\n", res.JWT)
				return nil
			}
			return printJSON(a.stdout, res.Credential)
		},
	}

	mnemonicFlag(cmd, &req.IssuerMnemonic, "issuer-mnemonic", "issuer DID mnemonic")
	cmd.Flags().StringVar(&req.Holder, "holder", "", "holder DID")
	cmd.Flags().StringArrayVar(&claims, "claim", nil, "claim as key=value, repeatable")
	cmd.Flags().BoolVar(&req.JWT, "jwt", false, "print the credential as a JWT")
	_ = cmd.MarkFlagRequired("holder")

	return cmd
}

func (a *app) credentialVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify a credential given as JSON or JWT; - reads stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}

			vc, err := sess.VerifyCredential(cmd.Context(), data)
			if err != nil {
				return err
			}

			a.printf("Credential %s is valid\n", vc.ID())
			a.printf("Issuer: %s\n", vc.Issuer())
			a.printf("Holder: %s\n", vc.Holder())
			return nil
		},
	}
}

func (a *app) credentialListCmd() *cobra.Command {
	var holder string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the credentials stored in the wallet database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			creds, err := st.ListCredentials(cmd.Context(), holder)
			if err != nil {
				return err
			}
			if len(creds) == 0 {
				a.printf("No stored credentials\n")
				return nil
			}

			for _, c := range creds {
				a.printf("%s issuer=%s holder=%s\n", c.ID, c.Issuer, c.Holder)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&holder, "holder", "", "only list credentials held by this DID")

	return cmd
}

// parseClaims turns key=value pairs into claims. Values are kept as
// strings unless they are valid JSON numbers, booleans or objects.
func parseClaims(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid claim %q, want key=value", p)
		}

		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			if _, isString := decoded.(string); !isString && decoded != nil {
				out[key] = decoded
				continue
			}
		}
		out[key] = value
	}

	return out, nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return data, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	return enc.Encode(v)
}
