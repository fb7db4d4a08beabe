package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreadKey_StripsPrefixesAndTrackingIDs(t *testing.T) {
	base, ok := ThreadKey("Steel storage box", "")
	assert.True(t, ok)
	assert.Equal(t, "subj:steel storage box", base)

	variants := []string{
		"Re: Steel storage box",
		"RE: Fwd: Steel storage box",
		"Re[2]: FW: steel   STORAGE box",
		"AW: WG: Steel storage box",
		"SV: VS: Steel storage box",
		"TR: Steel storage box [ABC-123]",
		"Re: [#4411] Steel storage box",
		"Steel storage box (Ticket #99)",
		"השב: הועבר: Steel storage box",
	}
	for _, v := range variants {
		t.Run(v, func(t *testing.T) {
			key, ok := ThreadKey(v, "<id@example.com>")
			assert.True(t, ok)
			assert.Equal(t, base, key)
		})
	}
}

func TestThreadKey_Hebrew(t *testing.T) {
	a, _ := ThreadKey("קופסת אחסון מפלדה", "")
	b, _ := ThreadKey("תשובה: קופסת אחסון מפלדה", "")
	assert.Equal(t, a, b)
}

func TestThreadKey_KeepsWordsThatLookLikePrefixes(t *testing.T) {
	key, _ := ThreadKey("Trade samples", "")
	assert.Equal(t, "subj:trade samples", key)
}

func TestThreadKey_FallsBackToMessageID(t *testing.T) {
	k1, ok := ThreadKey("", "<abc@mail>")
	assert.True(t, ok)
	assert.Regexp(t, `^msg:[0-9a-f]{16}$`, k1)

	k2, _ := ThreadKey("Re: ", "<abc@mail>")
	assert.Equal(t, k1, k2)

	k3, _ := ThreadKey("", "<other@mail>")
	assert.NotEqual(t, k1, k3)
}

func TestThreadKey_Untracked(t *testing.T) {
	key, ok := ThreadKey("  ", "")
	assert.False(t, ok)
	assert.Empty(t, key)
}
