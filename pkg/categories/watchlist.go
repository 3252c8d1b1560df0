package categories

import (
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/sudorandom/flowscope/pkg/telemetry"
)

// Watchlist flags records whose classification or label mentions any of a set
// of terms, case-insensitively.
type Watchlist struct {
	terms   []string
	matcher *ahocorasick.Matcher
}

// NewWatchlist builds a matcher over terms. Blank terms are ignored; a list
// with no terms matches nothing.
func NewWatchlist(terms []string) *Watchlist {
	w := &Watchlist{}
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			w.terms = append(w.terms, t)
		}
	}
	if len(w.terms) > 0 {
		w.matcher = ahocorasick.NewStringMatcher(w.terms)
	}
	return w
}

func (w *Watchlist) Terms() []string { return w.terms }

// Match returns the terms found in s.
func (w *Watchlist) Match(s string) []string {
	if w.matcher == nil || s == "" {
		return nil
	}
	hits := w.matcher.MatchThreadSafe([]byte(strings.ToLower(s)))
	out := make([]string, 0, len(hits))
	for _, i := range hits {
		out = append(out, w.terms[i])
	}
	return out
}

// MatchRecord checks the classification and label of a record.
func (w *Watchlist) MatchRecord(r telemetry.Record) bool {
	return len(w.Match(r.Classification+"\n"+r.Label)) > 0
}

// Watched returns every address taking part in a matching record.
func (w *Watchlist) Watched(records []telemetry.Record) map[string]bool {
	out := make(map[string]bool)
	if w.matcher == nil {
		return out
	}
	for _, r := range records {
		if w.MatchRecord(r) {
			out[r.SourceIP] = true
			out[r.DestinationIP] = true
		}
	}
	return out
}

// WatchedCategory is the category given to addresses seen in watched records.
const WatchedCategory = "watchlist"

// Categorizer names an address's category, "" when it has none.
type Categorizer interface {
	Category(addr string) string
}

// Highlight puts watched addresses in WatchedCategory and defers the rest to base.
type Highlight struct {
	Base    Categorizer
	Watched map[string]bool
}

func (h Highlight) Category(addr string) string {
	if h.Watched[addr] {
		return WatchedCategory
	}
	if h.Base == nil {
		return ""
	}
	return h.Base.Category(addr)
}

// Highlight returns base with the addresses of matching records highlighted.
// With no terms, base is returned unchanged.
func (w *Watchlist) Highlight(base Categorizer, records []telemetry.Record) Categorizer {
	if w == nil || w.matcher == nil {
		return base
	}
	return Highlight{Base: base, Watched: w.Watched(records)}
}
