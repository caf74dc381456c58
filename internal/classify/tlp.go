// Package classify derives the sharing-scope classification of compiled
// events from their tags and applies the release policy that keeps
// maximally sensitive events out of shared views.
package classify

import (
	"strings"

	"github.com/hmtran/floodgate/internal/playbook"
)

// TLP is the derived sensitivity classification. It is computed on
// demand from tags and never stored on the event.
type TLP string

const (
	TLPRed       TLP = "red"
	TLPAmber     TLP = "amber"
	TLPGreen     TLP = "green"
	TLPWhite     TLP = "white"
	TLPUndefined TLP = "undefined"
)

// markers in decreasing order of restriction. "clear" is the TLP 2.0
// spelling of white.
var markers = []struct {
	substrings []string
	level      TLP
}{
	{[]string{"tlp:red"}, TLPRed},
	{[]string{"tlp:amber"}, TLPAmber},
	{[]string{"tlp:green"}, TLPGreen},
	{[]string{"tlp:white", "tlp:clear"}, TLPWhite},
}

// Classify scans the event's tags for a sensitivity marker using
// case-insensitive substring matching. When several markers are present
// the most restrictive wins. No marker at all yields TLPUndefined,
// never the most permissive or most restrictive level.
func Classify(ev playbook.Event) TLP {
	found := TLPUndefined
	rank := len(markers)

	for _, tag := range ev.Tags {
		name := strings.ToLower(tag.Name)
		for i, m := range markers {
			if i >= rank {
				break
			}
			for _, sub := range m.substrings {
				if strings.Contains(name, sub) {
					found = m.level
					rank = i
					break
				}
			}
		}
	}

	return found
}

// Shareable returns the subset of events whose derived classification
// is not the maximally sensitive level. Events with no sensitivity tag
// pass: they are unclassified, not secret. Pure function: identical
// inputs always yield the identical subset, in input order.
func Shareable(events []playbook.Event, excludeMaxSensitive bool) []playbook.Event {
	out := make([]playbook.Event, 0, len(events))
	for _, ev := range events {
		if excludeMaxSensitive && Classify(ev) == TLPRed {
			continue
		}
		out = append(out, ev)
	}
	return out
}
