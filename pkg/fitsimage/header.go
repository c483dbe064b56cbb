package fitsimage

import (
	"slices"
	"strings"

	"github.com/astrogo/fitsio"
)

// Header is an immutable list of header cards.
type Header struct {
	cards []fitsio.Card
}

// NewHeader returns a Header with the cards.
func NewHeader(cards ...fitsio.Card) Header {
	return Header{cards: slices.Clone(cards)}
}

func headerOf(h *fitsio.Header) Header {
	cards := make([]fitsio.Card, 0, len(h.Keys()))
	for i := range len(h.Keys()) {
		if c := h.Card(i); c != nil {
			cards = append(cards, *c)
		}
	}
	return Header{cards: cards}
}

// Cards returns a copy of all cards.
func (h Header) Cards() []fitsio.Card {
	return slices.Clone(h.cards)
}

func (h Header) Get(key string) (fitsio.Card, bool) {
	for _, c := range h.cards {
		if c.Name == key {
			return c, true
		}
	}
	return fitsio.Card{}, false
}

// Float returns a numeric value of the card.
func (h Header) Float(key string) (float64, bool) {
	c, ok := h.Get(key)
	if !ok {
		return 0, false
	}
	switch v := c.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case int16:
		return float64(v), true
	case int8:
		return float64(v), true
	case uint8:
		return float64(v), true
	default:
		return 0, false
	}
}

// Int returns an integral value of the card.
func (h Header) Int(key string) (int, bool) {
	f, ok := h.Float(key)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// String returns a string value of the card, trimmed.
func (h Header) String(key string) (string, bool) {
	c, ok := h.Get(key)
	if !ok {
		return "", false
	}
	s, ok := c.Value.(string)
	return strings.TrimSpace(s), ok
}

// With returns a copy of h, where cards having same names are replaced and others are appended.
func (h Header) With(cards ...fitsio.Card) Header {
	out := slices.Clone(h.cards)
	for _, c := range cards {
		i := slices.IndexFunc(out, func(o fitsio.Card) bool { return o.Name == c.Name })
		if i < 0 {
			out = append(out, c)
		} else {
			out[i] = c
		}
	}
	return Header{cards: out}
}

// structural cards are generated on writing.
var structural = map[string]struct{}{
	"SIMPLE": {}, "BITPIX": {}, "EXTEND": {}, "END": {},
	"BSCALE": {}, "BZERO": {}, "BLANK": {},
	"COMMENT": {}, "HISTORY": {}, "": {},
}

func (h Header) userCards() []fitsio.Card {
	cards := make([]fitsio.Card, 0, len(h.cards))
	seen := map[string]struct{}{}
	for _, c := range h.cards {
		if _, ok := structural[c.Name]; ok {
			continue
		}
		if strings.HasPrefix(c.Name, "NAXIS") {
			continue
		}
		if _, ok := seen[c.Name]; ok {
			continue
		}
		seen[c.Name] = struct{}{}
		cards = append(cards, c)
	}
	return cards
}
