package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cosmossdk.io/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Pranav2456/Rutzo/internal/config"
	"github.com/Pranav2456/Rutzo/internal/devnet"
	"github.com/Pranav2456/Rutzo/internal/ledger"
	"github.com/Pranav2456/Rutzo/internal/session"
)

// env is what every subcommand works with once flags are resolved.
type env struct {
	cfg    config.Config
	logger log.Logger
	tr     ledger.Transport
	client *ledger.Client
}

type envKey struct{}

// NewRootCmd creates the duelctl root command.
func NewRootCmd() *cobra.Command {
	v := config.New()

	rootCmd := &cobra.Command{
		Use:           "duelctl",
		Short:         "Play three-round card duels against a duel authority",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(v, cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, envKey{}, e))
			return nil
		},
	}
	config.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		keygenCmd(),
		registerCmd(),
		cardsCmd(),
		playCmd(),
		historyCmd(),
		abandonCmd(),
	)
	return rootCmd
}

func newEnv(v *viper.Viper, cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(v, cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger(cmd.ErrOrStderr())

	var tr ledger.Transport
	if cfg.Devnet {
		if err := os.MkdirAll(cfg.DevnetHome(), 0o755); err != nil {
			return nil, err
		}
		app, err := devnet.New(cfg.DevnetHome(), logger)
		if err != nil {
			return nil, fmt.Errorf("init devnet: %w", err)
		}
		if tr, err = devnet.NewLocalTransport(app); err != nil {
			return nil, err
		}
	} else {
		if tr, err = ledger.Dial(cfg.Node); err != nil {
			return nil, fmt.Errorf("dial %s: %w", cfg.Node, err)
		}
	}
	return &env{
		cfg:    cfg,
		logger: logger,
		tr:     tr,
		client: ledger.NewClient(tr, logger),
	}, nil
}

func envFrom(cmd *cobra.Command) *env {
	return cmd.Context().Value(envKey{}).(*env)
}

// key loads the player key.
func (e *env) key() (*ledger.KeySigner, error) {
	k, err := ledger.LoadKeyFile(e.cfg.KeyFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no key at %s, run duelctl keygen first", e.cfg.KeyFile)
	}
	return k, err
}

// session builds a session for the player key.
func (e *env) session() (*session.Session, error) {
	k, err := e.key()
	if err != nil {
		return nil, err
	}
	return session.New(session.Options{
		Ledger:            e.client,
		Signers:           ledger.StaticProvider{S: k},
		PollInterval:      e.cfg.PollInterval,
		DiscoveryAttempts: e.cfg.DiscoveryAttempts,
		VerifyOnAck:       e.cfg.VerifyOnAck,
		Logger:            e.logger,
	})
}
