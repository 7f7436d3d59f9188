package scraper

import (
	"errors"
	"sort"

	"github.com/maltedev/mercado-scraper/internal/cache"
	"github.com/maltedev/mercado-scraper/internal/extract"
)

type selectorKey struct {
	selector string
	kind     string
}

// selectorTally counts, per selector, how often it was tried and how often
// its candidate was the one accepted. Candidates after the winner were never
// tried and are not counted.
type selectorTally map[selectorKey]*cache.SelectorCount

func newSelectorTally() selectorTally {
	return selectorTally{}
}

// add counts the fields the reconciler reached before err stopped it.
func (t selectorTally) add(f extract.Fragment, sel extract.Selection, err error) {
	t.addKind("name", f.Names, sel.Name)
	if errors.Is(err, extract.ErrNoName) {
		return
	}
	t.addKind("price", f.Prices, sel.Price)
	if errors.Is(err, extract.ErrNoPrice) {
		return
	}
	t.addKind("original_price", f.OriginalPrices, sel.OriginalPrice)
	t.addKind("url", f.URLs, sel.URL)
}

func (t selectorTally) addKind(kind string, candidates []extract.Candidate, winner string) {
	for _, c := range candidates {
		k := selectorKey{selector: c.Selector, kind: kind}
		sc, ok := t[k]
		if !ok {
			sc = &cache.SelectorCount{Selector: c.Selector, Type: kind}
			t[k] = sc
		}
		sc.Attempts++
		if c.Selector == winner {
			sc.Successes++
			return
		}
	}
}

func (t selectorTally) counts() []cache.SelectorCount {
	out := make([]cache.SelectorCount, 0, len(t))
	for _, sc := range t {
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Selector < out[j].Selector
	})
	return out
}
