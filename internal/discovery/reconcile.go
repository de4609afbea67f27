package discovery

import "fmt"

// ReplaceProposal is a suggested source→target substitution. Transformation
// records how reconciliation rewrote it.
type ReplaceProposal struct {
	Source          string   `json:"source"`
	Target          string   `json:"target"`
	Confidence      float64  `json:"confidence"`
	Examples        []string `json:"examples,omitempty"`
	OccurrenceCount int      `json:"occurrence_count,omitempty"`
	Transformation  string   `json:"-"`
}

// SpecialProposal is a suggested user-dictionary entry.
type SpecialProposal struct {
	Word            string   `json:"word"`
	Type            string   `json:"type"`
	Confidence      float64  `json:"confidence"`
	Examples        []string `json:"examples,omitempty"`
	OccurrenceCount int      `json:"occurrence_count,omitempty"`
	AutoAdded       bool     `json:"-"`
}

// Reconcile filters proposed dictionary deltas against the active
// dictionaries. It is a pure function of its inputs: existingReplace and
// existingSpecial are not mutated, and the same inputs always yield the
// same outputs.
//
// Replace proposals run through these rules in order:
//
//  1. source == target is degenerate and dropped.
//  2. A protected source (a replace target or a special word) means the
//     direction is inverted: the canonical term must stay the target.
//     If the swapped pair already exists verbatim it is dropped.
//  3. When the (possibly swapped) source already has a mapping A→B and the
//     proposal says A→C, the real new variant is C→B, so the proposal is
//     rewritten. If the rewritten source also exists it is dropped.
//  4. Every accepted target missing from the special words is auto-seeded
//     as a special proposal, suppressing duplicates within the batch.
//
// Special proposals are dropped when the word is already a special word,
// counting words auto-seeded earlier in the same call. Surviving manual
// special proposals come first in the output, auto-seeded ones after.
func Reconcile(
	proposedReplace []ReplaceProposal,
	proposedSpecial []SpecialProposal,
	existingReplace map[string]string,
	existingSpecial map[string]struct{},
) (acceptedReplace []ReplaceProposal, acceptedSpecial []SpecialProposal) {

	protected := make(map[string]struct{}, len(existingReplace)+len(existingSpecial))
	for _, target := range existingReplace {
		protected[target] = struct{}{}
	}
	special := make(map[string]struct{}, len(existingSpecial))
	for w := range existingSpecial {
		special[w] = struct{}{}
		protected[w] = struct{}{}
	}

	var autoSeeded []SpecialProposal
	for _, p := range proposedReplace {
		if p.Source == p.Target {
			continue
		}

		if _, isProtected := protected[p.Source]; isProtected {
			p.Source, p.Target = p.Target, p.Source
			p.Transformation = "swapped (protected)"
			if existing, ok := existingReplace[p.Source]; ok && existing == p.Target {
				continue
			}
		}

		if dbTarget, ok := existingReplace[p.Source]; ok {
			origSource, origTarget := p.Source, p.Target
			p.Source, p.Target = origTarget, dbTarget
			note := fmt.Sprintf("transformed: %s→%s ⇒ %s→%s",
				origSource, origTarget, p.Source, p.Target)
			if p.Transformation != "" {
				p.Transformation += "; " + note
			} else {
				p.Transformation = note
			}
			if _, dup := existingReplace[p.Source]; dup {
				continue
			}
		}

		acceptedReplace = append(acceptedReplace, p)

		if _, ok := special[p.Target]; !ok {
			autoSeeded = append(autoSeeded, SpecialProposal{
				Word:       p.Target,
				Type:       "auto_from_replace",
				Confidence: 1.0,
				AutoAdded:  true,
			})
			special[p.Target] = struct{}{}
		}
	}

	for _, p := range proposedSpecial {
		if _, exists := special[p.Word]; exists {
			continue
		}
		special[p.Word] = struct{}{}
		acceptedSpecial = append(acceptedSpecial, p)
	}

	return acceptedReplace, append(acceptedSpecial, autoSeeded...)
}
