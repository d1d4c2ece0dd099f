package types

import (
	"fmt"
	"strings"
)

// CardID is the opaque token id of a card.
type CardID uint64

// ElementType is the elemental type printed on a card.
type ElementType string

const (
	ElementFire     ElementType = "fire"
	ElementWater    ElementType = "water"
	ElementRock     ElementType = "rock"
	ElementIce      ElementType = "ice"
	ElementDark     ElementType = "dark"
	ElementFighting ElementType = "fighting"
)

var elementTypes = []ElementType{
	ElementFire,
	ElementWater,
	ElementRock,
	ElementIce,
	ElementDark,
	ElementFighting,
}

// ParseElementType accepts any casing, e.g. "Fire" from card metadata.
func ParseElementType(s string) (ElementType, error) {
	t := ElementType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown element type %q", s)
	}
	return t, nil
}

func (t ElementType) Valid() bool {
	for _, et := range elementTypes {
		if et == t {
			return true
		}
	}
	return false
}

// Card is immutable once fetched from the ledger.
type Card struct {
	ID    CardID      `json:"id"`
	Name  string      `json:"name"`
	Image string      `json:"media"`
	Type  ElementType `json:"type"`
	Power uint32      `json:"power"`
}

func (c Card) Validate() error {
	if c.Power == 0 {
		return fmt.Errorf("card %d: power must be positive", c.ID)
	}
	if !c.Type.Valid() {
		return fmt.Errorf("card %d: unknown element type %q", c.ID, c.Type)
	}
	return nil
}

func (c Card) String() string {
	return fmt.Sprintf("#%d %s (%s %d)", c.ID, c.Name, c.Type, c.Power)
}

func cloneCard(c *Card) *Card {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
