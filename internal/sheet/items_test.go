package sheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tariff-cli/internal/hscode"
	"github.com/sells-group/tariff-cli/internal/model"
)

func TestReadRequests_GroupsByThread(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Items": {
			{"Subject", "Message ID", "Description EN", "Description HE", "Material", "Origin", "FTA", "Candidates"},
			{"Invoice 12", "m-1", "steel storage box", "", "steel", "cn", "", "7326.9000:80; 9403.2000:60"},
			{"Invoice 12", "m-1", "electric shaver", "מכונת גילוח", "", "cn", "yes", "8510.1000"},
			{"", "", "plastic tray", "", "plastic", "", "", ""},
			{"", "", "glass jar", "", "glass", "", "", ""},
		},
	})

	reqs, err := ReadRequests(path, Options{})
	require.NoError(t, err)
	require.Len(t, reqs, 3)

	first := reqs[0]
	assert.Equal(t, "Invoice 12", first.Subject)
	assert.Equal(t, "m-1", first.MessageID)
	require.Len(t, first.Items, 2)

	box := first.Items[0]
	assert.Equal(t, "steel", box.Product.Material)
	assert.Equal(t, "CN", box.Product.OriginCountry)
	require.Len(t, box.Candidates, 2)
	assert.Equal(t, hscode.MustNormalize("7326.9000"), box.Candidates[0].Code)
	assert.InDelta(t, 80.0, box.Candidates[0].Confidence, 1e-9)
	assert.True(t, box.Candidates[0].Alive)
	assert.Equal(t, "73", box.Candidates[0].Locator.Chapter)

	shaver := first.Items[1]
	assert.True(t, shaver.FTAEligible)
	assert.Equal(t, "מכונת גילוח", shaver.Product.Description.HE)
	assert.InDelta(t, 50.0, shaver.Candidates[0].Confidence, 1e-9)

	assert.Len(t, reqs[1].Items, 1)
	assert.Len(t, reqs[2].Items, 1)
	assert.Empty(t, reqs[1].Items[0].Candidates)
}

func TestReadRequests_MissingDescription(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Items": {
			{"Subject", "Material"},
			{"Invoice 12", "steel"},
		},
	})

	_, err := ReadRequests(path, Options{})
	assert.ErrorContains(t, err, "row 2: missing description")
}

func TestParseCandidates(t *testing.T) {
	t.Run("malformed code kept verbatim", func(t *testing.T) {
		cands, err := ParseCandidates("73AB")
		require.NoError(t, err)
		require.Len(t, cands, 1)
		assert.Equal(t, "73AB", cands[0].Code)
		assert.Equal(t, model.Locator{}, cands[0].Locator)
		assert.Equal(t, model.ProvenanceCustomer, cands[0].Provenance)
	})

	t.Run("bad confidence", func(t *testing.T) {
		_, err := ParseCandidates("7326.9000:high")
		assert.Error(t, err)
		_, err = ParseCandidates("7326.9000:150")
		assert.Error(t, err)
	})

	t.Run("blank", func(t *testing.T) {
		cands, err := ParseCandidates(" ; \n")
		require.NoError(t, err)
		assert.Empty(t, cands)
	})
}
