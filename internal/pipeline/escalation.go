package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/hscode"
	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/pkg/notion"
)

// NotionSink files escalations in a Notion review-queue database.
type NotionSink struct {
	client notion.Client
	dbID   string
}

// NewNotionSink creates a sink for the database dbID.
func NewNotionSink(client notion.Client, dbID string) *NotionSink {
	return &NotionSink{client: client, dbID: dbID}
}

// Escalate implements EscalationSink.
func (s *NotionSink) Escalate(ctx context.Context, runID string, esc *model.Escalation) error {
	if esc == nil {
		return nil
	}
	codes := make([]string, len(esc.CodesTried))
	for i, c := range esc.CodesTried {
		codes[i] = hscode.Display(c)
	}

	id, created, err := notion.UpsertEscalation(ctx, s.client, s.dbID, notion.EscalationPage{
		ThreadKey:  esc.ThreadKey,
		Summary:    esc.Summary,
		CodesTried: codes,
		Attempts:   esc.AttemptCount,
		RunID:      runID,
		At:         time.Now().UTC(),
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: file escalation")
	}
	zap.L().Info("pipeline: escalation filed",
		zap.String("run_id", runID),
		zap.String("page_id", id),
		zap.Bool("created", created),
	)
	return nil
}
