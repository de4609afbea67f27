package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func specialSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func TestReconcileProtectedSwap(t *testing.T) {
	replace, special := Reconcile(
		[]ReplaceProposal{{Source: "甄嬛", Target: "甄環", Confidence: 0.9}},
		nil,
		map[string]string{},
		specialSet("甄嬛"),
	)

	require.Len(t, replace, 1)
	assert.Equal(t, "甄環", replace[0].Source)
	assert.Equal(t, "甄嬛", replace[0].Target)
	assert.Equal(t, "swapped (protected)", replace[0].Transformation)
	assert.Empty(t, special, "target already a special word, nothing to seed")
}

func TestReconcileSourceExistsTransform(t *testing.T) {
	// DB says A→B and the proposal says A→C, so C is really a new variant of B.
	replace, special := Reconcile(
		[]ReplaceProposal{{Source: "隨風搖GG", Target: "隨風搖ㄐㄐ"}},
		nil,
		map[string]string{"隨風搖GG": "隨風搖雞雞"},
		specialSet("隨風搖雞雞"),
	)

	require.Len(t, replace, 1)
	assert.Equal(t, "隨風搖ㄐㄐ", replace[0].Source)
	assert.Equal(t, "隨風搖雞雞", replace[0].Target)
	assert.Contains(t, replace[0].Transformation, "transformed")
	assert.Empty(t, special)
}

func TestReconcileTransformedDuplicateSkipped(t *testing.T) {
	replace, special := Reconcile(
		[]ReplaceProposal{{Source: "10初", Target: "10初初"}},
		nil,
		map[string]string{"10初": "10粗", "10初初": "10粗"},
		specialSet(),
	)

	assert.Empty(t, replace)
	assert.Empty(t, special)
}

func TestReconcileAutoSeedsSpecial(t *testing.T) {
	replace, special := Reconcile(
		[]ReplaceProposal{{Source: "眉姊姊", Target: "眉姐姐", Confidence: 0.8}},
		nil,
		map[string]string{},
		specialSet(),
	)

	require.Len(t, replace, 1)
	assert.Equal(t, "眉姊姊", replace[0].Source)
	assert.Equal(t, "眉姐姐", replace[0].Target)

	require.Len(t, special, 1)
	assert.Equal(t, "眉姐姐", special[0].Word)
	assert.Equal(t, "auto_from_replace", special[0].Type)
	assert.Equal(t, 1.0, special[0].Confidence)
	assert.True(t, special[0].AutoAdded)
}

func TestReconcileDegenerateSkipped(t *testing.T) {
	replace, special := Reconcile(
		[]ReplaceProposal{{Source: "甄嬛", Target: "甄嬛"}},
		nil,
		map[string]string{},
		specialSet(),
	)

	assert.Empty(t, replace)
	assert.Empty(t, special)
}

func TestReconcileChainedSwapThenDuplicate(t *testing.T) {
	// The proposal inverts an existing mapping; after the protected swap it
	// matches the DB verbatim and must vanish.
	replace, special := Reconcile(
		[]ReplaceProposal{{Source: "眉姐姐", Target: "眉姊姊"}},
		nil,
		map[string]string{"眉姊姊": "眉姐姐"},
		specialSet("眉姐姐"),
	)

	assert.Empty(t, replace)
	assert.Empty(t, special)
}

func TestReconcileSpecialAlreadyExists(t *testing.T) {
	_, special := Reconcile(
		nil,
		[]SpecialProposal{
			{Word: "華妃", Type: "character"},
			{Word: "甄嬛", Type: "character"},
		},
		map[string]string{},
		specialSet("甄嬛"),
	)

	require.Len(t, special, 1)
	assert.Equal(t, "華妃", special[0].Word)
}

func TestReconcileAutoSeedSuppressesLaterSpecial(t *testing.T) {
	// The auto-seeded target must swallow an identical explicit proposal in
	// the same batch.
	replace, special := Reconcile(
		[]ReplaceProposal{{Source: "眉姊姊", Target: "眉姐姐"}},
		[]SpecialProposal{{Word: "眉姐姐", Type: "character"}},
		map[string]string{},
		specialSet(),
	)

	require.Len(t, replace, 1)
	require.Len(t, special, 1)
	assert.True(t, special[0].AutoAdded)
}

func TestReconcileAutoSeedsFollowManualSpecials(t *testing.T) {
	replace, special := Reconcile(
		[]ReplaceProposal{{Source: "错字", Target: "正字"}},
		[]SpecialProposal{{Word: "華妃", Type: "character"}},
		map[string]string{},
		specialSet(),
	)

	require.Len(t, replace, 1)
	require.Len(t, special, 2)
	assert.Equal(t, "華妃", special[0].Word, "manual proposals come first")
	assert.False(t, special[0].AutoAdded)
	assert.Equal(t, "正字", special[1].Word)
	assert.True(t, special[1].AutoAdded)
}

func TestReconcileInputsNotMutated(t *testing.T) {
	existingReplace := map[string]string{"a": "b"}
	existingSpecial := specialSet("b")

	Reconcile(
		[]ReplaceProposal{{Source: "x", Target: "y"}},
		[]SpecialProposal{{Word: "z"}},
		existingReplace,
		existingSpecial,
	)

	assert.Equal(t, map[string]string{"a": "b"}, existingReplace)
	assert.Equal(t, specialSet("b"), existingSpecial)
}

func TestReconcileDuplicateAutoSeedWithinBatch(t *testing.T) {
	replace, special := Reconcile(
		[]ReplaceProposal{
			{Source: "错字一", Target: "正字"},
			{Source: "错字二", Target: "正字"},
		},
		nil,
		map[string]string{},
		specialSet(),
	)

	require.Len(t, replace, 2)
	require.Len(t, special, 1, "the shared target seeds exactly once")
	assert.Equal(t, "正字", special[0].Word)
}
