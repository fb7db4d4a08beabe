package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tariff-cli/internal/budget"
	"github.com/sells-group/tariff-cli/internal/model"
)

func TestOracleSource_Candidates(t *testing.T) {
	o := &stubOracle{name: "claude", cost: 0.003, text: "```json\n" + `{"candidates":[
		{"code":"7326.90","confidence":70,"description":"Other articles of iron or steel"},
		{"code":"7326.9000","confidence":65},
		{"code":"not-a-code","confidence":50},
		{"code":"7310.10","confidence":140},
		{"code":"8310.00","confidence":10}
	]}` + "\n```"}
	ledger := budget.NewLedger(1, 0)

	cands, err := NewOracleSource(o, 2).Candidates(context.Background(), ledger, model.ProductInfo{
		Description: model.Bilingual{EN: "steel storage box"},
	})
	require.NoError(t, err)
	require.Len(t, cands, 2)

	assert.Equal(t, "7326900000", cands[0].Code)
	assert.Equal(t, "73", cands[0].Locator.Chapter)
	assert.Equal(t, model.ProvenanceAI, cands[0].Provenance)
	assert.True(t, cands[0].Alive)
	assert.Equal(t, "Other articles of iron or steel", cands[0].Description.EN)

	assert.Equal(t, "7310100000", cands[1].Code, "duplicates and malformed codes are skipped")
	assert.Equal(t, 100.0, cands[1].Confidence)

	assert.InDelta(t, 0.003, ledger.Snapshot().SpentUSD, 1e-9)
	assert.Equal(t, int64(100), ledger.Usage().InputTokens)
}

func TestOracleSource_UnparseableReply(t *testing.T) {
	o := &stubOracle{name: "claude", text: "I would need more detail."}
	cands, err := NewOracleSource(o, 0).Candidates(context.Background(), budget.NewLedger(1, 0), model.ProductInfo{})
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestOracleSource_Errors(t *testing.T) {
	t.Run("oracle failure", func(t *testing.T) {
		o := &stubOracle{name: "claude", err: errors.New("boom")}
		_, err := NewOracleSource(o, 0).Candidates(context.Background(), budget.NewLedger(1, 0), model.ProductInfo{})
		assert.ErrorContains(t, err, "pipeline: candidate search")
	})

	t.Run("budget stopped", func(t *testing.T) {
		o := &stubOracle{name: "claude"}
		_, err := NewOracleSource(o, 0).Candidates(context.Background(), budget.NewLedger(0, 0), model.ProductInfo{})
		require.Error(t, err)
		assert.True(t, budget.IsExhausted(err))
		assert.Zero(t, o.Calls())
	})
}

// --- Notion sink ---

type fakeNotion struct {
	queried int
	created []*notionapi.PageCreateRequest
	err     error
}

func (f *fakeNotion) QueryDatabase(context.Context, string, *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	f.queried++
	return &notionapi.DatabaseQueryResponse{}, nil
}

func (f *fakeNotion) CreatePage(_ context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, req)
	return &notionapi.Page{ID: "esc-1"}, nil
}

func (f *fakeNotion) UpdatePage(context.Context, string, *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	return nil, errors.New("unexpected update")
}

func TestNotionSink_Escalate(t *testing.T) {
	nc := &fakeNotion{}
	sink := NewNotionSink(nc, "db-review")

	err := sink.Escalate(context.Background(), "run-9", &model.Escalation{
		ThreadKey:    "subj:steel storage box",
		Summary:      "escalated",
		CodesTried:   []string{"7326900000"},
		AttemptCount: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, nc.queried)
	require.Len(t, nc.created, 1)

	codes, ok := nc.created[0].Properties["Codes Tried"].(notionapi.RichTextProperty)
	require.True(t, ok)
	assert.Equal(t, "7326.90.0000", codes.RichText[0].Text.Content)
	run, ok := nc.created[0].Properties["Run ID"].(notionapi.RichTextProperty)
	require.True(t, ok)
	assert.Equal(t, "run-9", run.RichText[0].Text.Content)
}

func TestNotionSink_Errors(t *testing.T) {
	sink := NewNotionSink(&fakeNotion{err: errors.New("notion down")}, "db-review")
	err := sink.Escalate(context.Background(), "run-1", &model.Escalation{ThreadKey: "subj:x"})
	assert.ErrorContains(t, err, "pipeline: file escalation")

	assert.NoError(t, sink.Escalate(context.Background(), "run-1", nil))
}
