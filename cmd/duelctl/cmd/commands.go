package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Pranav2456/Rutzo/internal/codec"
	"github.com/Pranav2456/Rutzo/internal/devnet"
	"github.com/Pranav2456/Rutzo/internal/ledger"
	"github.com/Pranav2456/Rutzo/internal/session"
	"github.com/Pranav2456/Rutzo/internal/types"
)

func keygenCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a player key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := envFrom(cmd)
			if _, err := os.Stat(e.cfg.KeyFile); err == nil && !force {
				return fmt.Errorf("key %s exists (use --force to replace it)", e.cfg.KeyFile)
			}
			k, err := ledger.GenerateKey()
			if err != nil {
				return err
			}
			if err := ledger.SaveKeyFile(e.cfg.KeyFile, k); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), k.Address())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key")
	return cmd
}

func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Register the player key with the authority",
		Long:  "Register the player key with the authority. On a devnet the starter deck is minted as well.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := envFrom(cmd)
			k, err := e.key()
			if err != nil {
				return err
			}
			msg := codec.RegisterAccountTx{Account: k.Address(), PubKey: k.PubKey()}
			ack, err := e.client.Submit(cmd.Context(), k, codec.TxRegisterAccount, msg, "", uuid.NewString())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s at height %d\n", k.Address(), ack.Height)
			if e.cfg.Devnet {
				if err := devnet.Faucet(cmd.Context(), e.tr, k.Address()); err != nil {
					return fmt.Errorf("faucet: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "minted %d starter cards\n", len(devnet.StarterDeck))
			}
			return nil
		},
	}
}

func cardsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cards",
		Short: "List the player's cards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := envFrom(cmd).session()
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.LoadCards(cmd.Context()); err != nil {
				return err
			}
			for _, c := range s.Inventory().Available() {
				fmt.Fprintln(cmd.OutOrStdout(), c.String())
			}
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show finished-match totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := envFrom(cmd).session()
			if err != nil {
				return err
			}
			defer s.Close()
			h, err := s.History(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wins %d  losses %d  draws %d\n", h.Wins, h.Losses, h.Draws)
			if h.RecentPastGame.Valid() {
				fmt.Fprintf(out, "last match %d\n", h.RecentPastGame)
			}
			return nil
		},
	}
}

func abandonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abandon",
		Short: "Abandon the player's active match",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := envFrom(cmd)
			k, err := e.key()
			if err != nil {
				return err
			}
			id, err := e.client.PlayerMatch(cmd.Context(), k.Address())
			if err != nil {
				return err
			}
			if !id.Valid() {
				return fmt.Errorf("%s is not in a match", k.Address())
			}
			msg := codec.AbandonMatchTx{MatchID: int64(id)}
			if _, err := e.client.Submit(cmd.Context(), k, codec.TxAbandonMatch, msg, "", uuid.NewString()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "abandoned match %d\n", id)
			return nil
		},
	}
}

func playCmd() *cobra.Command {
	var (
		cardList string
		auto     bool
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a match and play it to the end",
		Long: `Join a match with three cards and play it to the end.

A match the player is already in is resumed and --cards is ignored.
Otherwise cards default to the first three owned. On each turn the card id is read
from stdin unless --auto is set, which plays the first card in hand.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := envFrom(cmd)
			s, err := e.session()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			if err := s.LoadCards(ctx); err != nil {
				return err
			}
			p := &player{s: s, out: cmd.OutOrStdout(), in: bufio.NewReader(cmd.InOrStdin()), auto: auto, wake: make(chan struct{}, 1)}
			unsub := s.Subscribe(p.onEvent)
			defer unsub()

			resumed, err := s.Resume(ctx)
			if err != nil {
				return err
			}
			if resumed {
				fmt.Fprintf(p.out, "resuming match %d\n", s.View().MatchID)
				return p.run(ctx)
			}

			ids, err := pickCards(s, cardList)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if err := s.Select(id); err != nil {
					return err
				}
			}
			fmt.Fprintf(p.out, "joining a %s match...\n", e.cfg.Mode)
			if err := s.StartMatch(ctx, e.cfg.Mode); err != nil {
				return err
			}
			return p.run(ctx)
		},
	}
	cmd.Flags().StringVar(&cardList, "cards", "", "comma-separated card ids to commit")
	cmd.Flags().BoolVar(&auto, "auto", false, "play the first card in hand on every turn")
	return cmd
}

func pickCards(s *session.Session, list string) ([]types.CardID, error) {
	if list == "" {
		avail := s.Inventory().Available()
		if len(avail) < types.HandSize {
			return nil, fmt.Errorf("need %d cards, own %d", types.HandSize, len(avail))
		}
		ids := make([]types.CardID, 0, types.HandSize)
		for _, c := range avail[:types.HandSize] {
			ids = append(ids, c.ID)
		}
		return ids, nil
	}
	var ids []types.CardID
	for _, f := range strings.Split(list, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("card id %q: %w", f, err)
		}
		ids = append(ids, types.CardID(n))
	}
	return ids, nil
}

// player drives one match from the terminal.
type player struct {
	s    *session.Session
	out  io.Writer
	in   *bufio.Reader
	auto bool
	wake chan struct{}
}

func (p *player) onEvent(ev types.Event) {
	switch pl := ev.Payload.(type) {
	case types.OpponentMovedPayload:
		fmt.Fprintf(p.out, "opponent played %s (%d left)\n", pl.Card, pl.Remaining)
	case types.RoundOutcomePayload:
		fmt.Fprintf(p.out, "round %d: %s\n", pl.Round, pl.Outcome)
	case types.MatchOutcomePayload:
		if ev.Kind == types.EventMatchOutcome {
			fmt.Fprintf(p.out, "match over: %s\n", pl.Outcome)
		}
	case types.ErrorPayload:
		fmt.Fprintf(p.out, "%s: %v\n", ev.Kind, pl.Err)
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *player) run(ctx context.Context) error {
	for {
		v := p.s.View()
		switch {
		case v.Phase == types.PhaseIdle:
			return fmt.Errorf("match ended without a result")
		case v.Phase == types.PhaseMatchSettling:
			settled, err := p.s.Acknowledge(ctx)
			if err != nil {
				return err
			}
			if settled {
				fmt.Fprintf(p.out, "result: %s\n", v.Outcome)
				return nil
			}
		case v.Phase == types.PhaseInMatch && v.IsLocalPlayerTurn:
			if err := p.move(ctx, v); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.wake:
		}
	}
}

func (p *player) move(ctx context.Context, v types.MatchView) error {
	if len(v.LocalHand) == 0 {
		return fmt.Errorf("turn in round %d with an empty hand", v.CurrentRound)
	}
	id := v.LocalHand[0].ID
	if !p.auto {
		fmt.Fprintf(p.out, "round %d, your hand:\n", v.CurrentRound)
		for _, c := range v.LocalHand {
			fmt.Fprintf(p.out, "  %s\n", c)
		}
		for {
			fmt.Fprint(p.out, "card id> ")
			line, err := p.in.ReadString('\n')
			if err != nil && line == "" {
				return err
			}
			n, err := strconv.ParseUint(strings.TrimSpace(line), 10, 64)
			if err == nil {
				id = types.CardID(n)
				break
			}
			fmt.Fprintf(p.out, "not a card id: %q\n", strings.TrimSpace(line))
		}
	}
	if err := p.s.PlayCard(ctx, id); err != nil {
		if p.auto {
			return err
		}
		fmt.Fprintf(p.out, "play rejected: %v\n", err)
		if nv := p.s.View(); nv.Phase == types.PhaseInMatch && nv.IsLocalPlayerTurn {
			return p.move(ctx, nv)
		}
	}
	return nil
}
