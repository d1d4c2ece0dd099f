package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cosmossdk.io/log"
	"github.com/cometbft/cometbft/abci/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Pranav2456/Rutzo/internal/devnet"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var home, addr, transport, level string

	cmd := &cobra.Command{
		Use:           "dueld",
		Short:         "Card duel authority as a CometBFT ABCI application",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lvl, err := zerolog.ParseLevel(level)
			if err != nil {
				return fmt.Errorf("log level: %w", err)
			}
			logger := log.NewLogger(cmd.ErrOrStderr(), log.LevelOption(lvl))

			a, err := devnet.New(home, logger)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			srv, err := server.NewServer(addr, transport, a)
			if err != nil {
				return fmt.Errorf("create abci server: %w", err)
			}
			if err := srv.Start(); err != nil {
				return fmt.Errorf("start abci server: %w", err)
			}
			defer func() { _ = srv.Stop() }()
			logger.Info("abci server listening", "addr", addr, "transport", transport, "home", home)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			logger.Info("shutting down", "signal", sig.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&home, "home", ".dueld", "app home directory (state is stored under <home>/app)")
	cmd.Flags().StringVar(&addr, "addr", "tcp://127.0.0.1:26658", "ABCI listen address")
	cmd.Flags().StringVar(&transport, "transport", "socket", "ABCI transport (socket|grpc)")
	cmd.Flags().StringVar(&level, "log-level", "info", "log level")
	return cmd
}
