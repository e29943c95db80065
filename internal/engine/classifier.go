// internal/engine/classifier.go
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/sweeper-cli/internal/dom"
)

// Variant is the content variant of a feed item. Reposts render menus whose
// delete entry sits at a different position than an original post's.
type Variant int

const (
	VariantRegular Variant = iota
	VariantSimpleRepost
	VariantRepostWithThoughts
	VariantRepostOfRepost
)

func (v Variant) String() string {
	switch v {
	case VariantRegular:
		return "regular"
	case VariantSimpleRepost:
		return "simple_repost"
	case VariantRepostWithThoughts:
		return "repost_with_thoughts"
	case VariantRepostOfRepost:
		return "repost_of_repost"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Classifier decides which Variant an item is.
type Classifier interface {
	Classify(ctx context.Context, page dom.Page, item dom.Handle) Variant
}

// PhraseRule maps a set of lower-case phrases to a variant.
type PhraseRule struct {
	Variant Variant
	Phrases []string
}

// PhraseClassifier matches the item's text, then the text of its marker
// sub-elements, against Rules in order. Anything unmatched is regular.
type PhraseClassifier struct {
	Rules   []PhraseRule
	Markers dom.Chain
}

func (c PhraseClassifier) Classify(ctx context.Context, page dom.Page, item dom.Handle) Variant {
	text, err := page.Text(ctx, item)
	if err != nil {
		return VariantRegular
	}
	if v, ok := c.match(text); ok {
		return v
	}
	if len(c.Markers) == 0 {
		return VariantRegular
	}

	markers, _, err := dom.ResolveAll(ctx, page, item, c.Markers)
	if err != nil {
		return VariantRegular
	}
	for _, m := range markers {
		t, err := page.Text(ctx, m)
		if err != nil {
			continue
		}
		if v, ok := c.match(t); ok {
			return v
		}
	}
	return VariantRegular
}

func (c PhraseClassifier) match(text string) (Variant, bool) {
	text = strings.ToLower(text)
	for _, r := range c.Rules {
		for _, phrase := range r.Phrases {
			if strings.Contains(text, phrase) {
				return r.Variant, true
			}
		}
	}
	return VariantRegular, false
}
