package notion

import (
	"context"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func samplePage() EscalationPage {
	return EscalationPage{
		ThreadKey:  "subj:steel storage box",
		Summary:    "attempt 3 exceeds the limit of 2",
		CodesTried: []string{"7326.90.0000", "9403.20.0000"},
		Attempts:   3,
		RunID:      "run-1",
		At:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestUpsertEscalation_CreatesWhenNoneOpen(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-review", mock.MatchedBy(threadFilter("subj:steel storage box"))).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()

	var captured *notionapi.PageCreateRequest
	mc.On("CreatePage", ctx, mock.AnythingOfType("*notionapi.PageCreateRequest")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*notionapi.PageCreateRequest)
		}).
		Return(&notionapi.Page{ID: "esc-new"}, nil).Once()

	id, created, err := UpsertEscalation(ctx, mc, "db-review", samplePage())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "esc-new", id)

	require.NotNil(t, captured)
	assert.Equal(t, notionapi.DatabaseID("db-review"), captured.Parent.DatabaseID)

	title, ok := captured.Properties[PropTitle].(notionapi.TitleProperty)
	require.True(t, ok)
	assert.Equal(t, "subj:steel storage box", title.Title[0].Text.Content)

	codes, ok := captured.Properties[PropCodesTried].(notionapi.RichTextProperty)
	require.True(t, ok)
	assert.Equal(t, "7326.90.0000, 9403.20.0000", codes.RichText[0].Text.Content)

	attempts, ok := captured.Properties[PropAttempts].(notionapi.NumberProperty)
	require.True(t, ok)
	assert.Equal(t, 3.0, attempts.Number)

	status, ok := captured.Properties[PropStatus].(notionapi.StatusProperty)
	require.True(t, ok)
	assert.Equal(t, StatusOpen, status.Status.Name)
	mc.AssertExpectations(t)
}

func TestUpsertEscalation_UpdatesOpenPage(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-review", mock.Anything).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{
				{ID: "esc-old", Properties: notionapi.Properties{
					PropStatus: &notionapi.StatusProperty{Status: notionapi.Status{Name: StatusResolved}},
				}},
				{ID: "esc-open", Properties: notionapi.Properties{
					PropStatus: &notionapi.StatusProperty{Status: notionapi.Status{Name: StatusOpen}},
				}},
			},
		}, nil).Once()

	mc.On("UpdatePage", ctx, "esc-open", mock.MatchedBy(func(req *notionapi.PageUpdateRequest) bool {
		_, hasTitle := req.Properties[PropTitle]
		n, ok := req.Properties[PropAttempts].(notionapi.NumberProperty)
		return !hasTitle && ok && n.Number == 3
	})).Return(&notionapi.Page{ID: "esc-open"}, nil).Once()

	id, created, err := UpsertEscalation(ctx, mc, "db-review", samplePage())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "esc-open", id)
	mc.AssertNotCalled(t, "CreatePage", mock.Anything, mock.Anything)
	mc.AssertExpectations(t)
}

func TestUpsertEscalation_ResolvedPagesAreIgnored(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-review", mock.Anything).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{
				{ID: "esc-old", Properties: notionapi.Properties{
					PropStatus: &notionapi.StatusProperty{Status: notionapi.Status{Name: StatusResolved}},
				}},
			},
		}, nil).Once()
	mc.On("CreatePage", ctx, mock.Anything).Return(&notionapi.Page{ID: "esc-2"}, nil).Once()

	id, created, err := UpsertEscalation(ctx, mc, "db-review", samplePage())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "esc-2", id)
	mc.AssertExpectations(t)
}

func TestUpsertEscalation_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing database", func(t *testing.T) {
		_, _, err := UpsertEscalation(ctx, new(MockClient), "", samplePage())
		assert.Error(t, err)
	})

	t.Run("missing thread key", func(t *testing.T) {
		p := samplePage()
		p.ThreadKey = ""
		_, _, err := UpsertEscalation(ctx, new(MockClient), "db", p)
		assert.Error(t, err)
	})

	t.Run("create fails", func(t *testing.T) {
		mc := new(MockClient)
		mc.On("QueryDatabase", ctx, "db", mock.Anything).Return(&notionapi.DatabaseQueryResponse{}, nil)
		mc.On("CreatePage", ctx, mock.Anything).Return(nil, assert.AnError)

		_, _, err := UpsertEscalation(ctx, mc, "db", samplePage())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "notion: create escalation")
	})

	t.Run("update fails", func(t *testing.T) {
		mc := new(MockClient)
		mc.On("QueryDatabase", ctx, "db", mock.Anything).Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{{ID: "esc-open"}},
		}, nil)
		mc.On("UpdatePage", ctx, "esc-open", mock.Anything).Return(nil, assert.AnError)

		_, _, err := UpsertEscalation(ctx, mc, "db", samplePage())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "notion: update escalation esc-open")
	})
}

func TestRichText_TruncatesOnRuneBoundary(t *testing.T) {
	long := make([]rune, 2100)
	for i := range long {
		long[i] = 'ש'
	}
	rt := richText(string(long))
	assert.Len(t, []rune(rt.RichText[0].Text.Content), 2000)
}
