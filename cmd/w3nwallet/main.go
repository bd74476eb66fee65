// Command w3nwallet claims Web3 Names and DIDs from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pilacorp/go-w3n-wallet/blockchain"
	"github.com/pilacorp/go-w3n-wallet/config"
	"github.com/pilacorp/go-w3n-wallet/session"
	"github.com/pilacorp/go-w3n-wallet/store"
)

// app holds the state shared by all commands of one invocation.
type app struct {
	verbose bool
	rpc     string
	dbPath  string
	noSend  bool

	stdout    io.Writer
	newLogger func(level zapcore.Level) (*zap.Logger, error)

	logger *zap.Logger
	cfg    *config.Config
	store  *store.Store
	sess   *session.Session
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	a := newApp(stdout)
	if err := execute(a, args); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	return 0
}

func newApp(stdout io.Writer) *app {
	return &app{
		stdout: stdout,
		newLogger: func(level zapcore.Level) (*zap.Logger, error) {
			cfg := zap.NewProductionConfig()
			cfg.Level = zap.NewAtomicLevelAt(level)
			return cfg.Build()
		},
	}
}

func execute(a *app, args []string) error {
	defer a.close()

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)

	return a.report(root.Execute())
}

// report prints transactions signed in no-send mode instead of failing.
func (a *app) report(err error) error {
	var unsent *blockchain.UnsentTxError
	if !errors.As(err, &unsent) {
		return err
	}

	a.printf("TX_HASH=%s\n", unsent.Tx.TxHash)
	a.printf("RAW_TX=0x%s\n", unsent.Tx.RawTx)
	return nil
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "w3nwallet",
		Short: "Claim Web3 Names and DIDs",
		Long: `w3nwallet anchors DIDs, links Web3 Names to them and issues
credentials from issuer DIDs.

Configuration is read from W3N_* environment variables. Use --rpc memory://
to run against an in-process ledger.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&a.rpc, "rpc", "", "chain RPC endpoint (overrides W3N_RPC_URL)")
	flags.StringVar(&a.dbPath, "db", "", "wallet database path (overrides W3N_DB_PATH)")
	flags.BoolVar(&a.noSend, "no-send", false, "sign transactions and print them raw instead of sending (overrides W3N_NO_SEND)")

	root.AddCommand(
		a.generateCmd(),
		a.importCmd(),
		a.overviewCmd(),
		a.balanceCmd(),
		a.runCmd(),
		a.didCmd(),
		a.w3nCmd(),
		a.credentialCmd(),
		a.accountsCmd(),
		a.namesCmd(),
		a.txCmd(),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.rpc != "" {
		cfg.RPCURL = a.rpc
	}
	if cmd.Flags().Changed("db") {
		cfg.DBPath = a.dbPath
	}
	if cmd.Flags().Changed("no-send") {
		cfg.NoSend = a.noSend
	}
	a.cfg = cfg

	level := cfg.Level()
	if a.verbose {
		level = zapcore.DebugLevel
	}
	if a.logger, err = a.newLogger(level); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	return nil
}

// session connects on first use.
func (a *app) session(ctx context.Context) (*session.Session, error) {
	if a.sess != nil {
		return a.sess, nil
	}
	if a.cfg == nil {
		return nil, errors.New("configuration not loaded")
	}

	var opts []session.Option
	if a.cfg.DBPath != "" {
		st, err := a.openStore(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, session.WithStore(st, a.cfg.Passphrase))
	}

	sess, err := session.Dial(ctx, a.cfg, a.logger, opts...)
	if err != nil {
		return nil, err
	}
	a.sess = sess

	return sess, nil
}

// openStore opens the wallet database on first use.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	if a.cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	if a.cfg.DBPath == "" {
		return nil, errors.New("no wallet database configured, set W3N_DB_PATH or --db")
	}

	st, err := store.Open(ctx, a.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a.store = st

	return st, nil
}

func (a *app) close() {
	if a.sess != nil {
		a.sess.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.stdout, format, args...)
}
