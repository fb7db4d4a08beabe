package safety

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/hscode"
	"github.com/sells-group/tariff-cli/internal/model"
)

// DefaultMaxAttempts is how many automated classifications a conversation
// gets before it is escalated.
const DefaultMaxAttempts = 2

// AttemptStore persists attempt counts by thread key.
type AttemptStore interface {
	// Next increments the attempt count for key, never past limit, and
	// returns the updated row.
	Next(ctx context.Context, key string, limit int) (*model.ClassificationAttempt, error)
	// RecordCodes appends codes to the codes tried for key, skipping codes
	// already recorded.
	RecordCodes(ctx context.Context, key string, codes []string) error
}

// Admission is the loop breaker's verdict for one request.
type Admission struct {
	ThreadKey  string
	Tracked    bool
	Attempt    int
	Allowed    bool
	Escalation *model.Escalation
	Caveat     string
}

// LoopBreaker refuses automated classification once a conversation has used
// its attempts.
type LoopBreaker struct {
	store AttemptStore
	max   int
}

// NewLoopBreaker creates a loop breaker. A max below one takes the default.
func NewLoopBreaker(store AttemptStore, max int) *LoopBreaker {
	if max < 1 {
		max = DefaultMaxAttempts
	}
	return &LoopBreaker{store: store, max: max}
}

// Max returns the number of allowed attempts.
func (b *LoopBreaker) Max() int { return b.max }

// Admit counts a new attempt for the conversation. Untracked conversations
// and store failures are admitted with a caveat.
func (b *LoopBreaker) Admit(ctx context.Context, subject, messageID string) *Admission {
	key, tracked := ThreadKey(subject, messageID)
	if !tracked {
		return &Admission{
			Allowed: true,
			Caveat:  "conversation could not be identified; the attempt limit is not enforced for this request",
		}
	}

	log := zap.L().With(zap.String("thread_key", key))
	att, err := b.store.Next(ctx, key, b.max+1)
	if err != nil {
		log.Error("safety: attempt store unavailable", zap.Error(err))
		return &Admission{
			ThreadKey: key,
			Tracked:   true,
			Allowed:   true,
			Caveat:    "attempt history unavailable; the attempt limit could not be checked",
		}
	}

	adm := &Admission{ThreadKey: key, Tracked: true, Attempt: att.AttemptCount, Allowed: att.AttemptCount <= b.max}
	if !adm.Allowed {
		adm.Escalation = escalation(key, att)
		log.Warn("safety: attempt limit reached, escalating",
			zap.Int("attempt", att.AttemptCount),
			zap.Strings("codes_tried", att.CodesTried),
		)
	}
	return adm
}

// Record stores the codes produced by an admitted attempt.
func (b *LoopBreaker) Record(ctx context.Context, adm *Admission, codes []string) error {
	if adm == nil || !adm.Tracked || len(codes) == 0 {
		return nil
	}
	if err := b.store.RecordCodes(ctx, adm.ThreadKey, codes); err != nil {
		return eris.Wrapf(err, "safety: record codes for %s", adm.ThreadKey)
	}
	return nil
}

func escalation(key string, att *model.ClassificationAttempt) *model.Escalation {
	tried := make([]string, len(att.CodesTried))
	display := make([]string, len(att.CodesTried))
	for i, c := range att.CodesTried {
		tried[i] = c
		display[i] = hscode.Display(c)
	}

	summary := fmt.Sprintf("This conversation has already been classified automatically %d time(s) without resolution. "+
		"It has been handed to a customs specialist for manual review.", att.AttemptCount-1)
	if len(display) > 0 {
		summary += " Codes already proposed: " + strings.Join(display, ", ") + "."
	}
	return &model.Escalation{
		ThreadKey:    key,
		Summary:      summary,
		CodesTried:   tried,
		AttemptCount: att.AttemptCount,
	}
}
