package inventory

import (
	"fmt"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"

	"github.com/Pranav2456/Rutzo/internal/types"
)

// Tracker partitions the player's owned cards into available and selected.
//
// Both lists are ordered most-recently-moved first. At most types.HandSize
// cards can be selected; a full selection rejects further picks rather than
// evicting one.
type Tracker struct {
	logger log.Logger

	mu        sync.Mutex
	available []types.Card
	selected  []types.Card
}

func New(logger log.Logger) *Tracker {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Tracker{logger: logger.With("module", "inventory")}
}

// Load replaces the owned cards. Cards that were selected and are still owned
// stay selected.
func (t *Tracker) Load(cards []types.Card) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	owned := make(map[types.CardID]types.Card, len(cards))
	for _, c := range cards {
		if _, dup := owned[c.ID]; dup {
			return errorsmod.Wrapf(types.ErrInvalidRequest, "duplicate card id %d", c.ID)
		}
		owned[c.ID] = c
	}

	selected := make([]types.Card, 0, types.HandSize)
	kept := map[types.CardID]bool{}
	for _, c := range t.selected {
		if fresh, ok := owned[c.ID]; ok {
			selected = append(selected, fresh)
			kept[c.ID] = true
		}
	}
	available := make([]types.Card, 0, len(cards))
	for _, c := range cards {
		if !kept[c.ID] {
			available = append(available, c)
		}
	}
	t.available, t.selected = available, selected
	t.logger.Debug("cards loaded", "owned", len(cards), "selected", len(selected))
	return t.checkLocked()
}

func (t *Tracker) Select(id types.CardID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := indexOf(t.available, id)
	if i < 0 {
		return errorsmod.Wrapf(types.ErrNotFound, "card %d is not available", id)
	}
	if len(t.selected) >= types.HandSize {
		return errorsmod.Wrapf(types.ErrCapacityExceeded, "already %d cards selected", len(t.selected))
	}
	card := t.available[i]
	t.available = removeAt(t.available, i)
	t.selected = prepend(t.selected, card)
	return t.checkLocked()
}

func (t *Tracker) Deselect(id types.CardID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := indexOf(t.selected, id)
	if i < 0 {
		return errorsmod.Wrapf(types.ErrNotFound, "card %d is not selected", id)
	}
	card := t.selected[i]
	t.selected = removeAt(t.selected, i)
	t.available = prepend(t.available, card)
	return t.checkLocked()
}

// Clear returns every selected card to available.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for len(t.selected) > 0 {
		card := t.selected[0]
		t.selected = removeAt(t.selected, 0)
		t.available = prepend(t.available, card)
	}
}

func (t *Tracker) Available() []types.Card {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]types.Card(nil), t.available...)
}

func (t *Tracker) Selected() []types.Card {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]types.Card(nil), t.selected...)
}

func (t *Tracker) SelectedIDs() []types.CardID {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]types.CardID, 0, len(t.selected))
	for _, c := range t.selected {
		ids = append(ids, c.ID)
	}
	return ids
}

// checkLocked verifies the partition invariants.
func (t *Tracker) checkLocked() error {
	if len(t.selected) > types.HandSize {
		return fmt.Errorf("inventory invariant: %d cards selected", len(t.selected))
	}
	seen := make(map[types.CardID]bool, len(t.available)+len(t.selected))
	for _, list := range [][]types.Card{t.available, t.selected} {
		for _, c := range list {
			if seen[c.ID] {
				return fmt.Errorf("inventory invariant: card %d listed twice", c.ID)
			}
			seen[c.ID] = true
		}
	}
	return nil
}

func indexOf(cards []types.Card, id types.CardID) int {
	for i, c := range cards {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func removeAt(cards []types.Card, i int) []types.Card {
	out := make([]types.Card, 0, len(cards)-1)
	out = append(out, cards[:i]...)
	return append(out, cards[i+1:]...)
}

func prepend(cards []types.Card, c types.Card) []types.Card {
	out := make([]types.Card, 0, len(cards)+1)
	out = append(out, c)
	return append(out, cards...)
}
