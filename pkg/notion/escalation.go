package notion

import (
	"context"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Review queue property names.
const (
	PropTitle      = "Thread"
	PropSummary    = "Summary"
	PropCodesTried = "Codes Tried"
	PropAttempts   = "Attempts"
	PropRunID      = "Run ID"
	PropStatus     = "Status"
	PropEscalated  = "Escalated At"
)

// Review queue statuses.
const (
	StatusOpen     = "Open"
	StatusResolved = "Resolved"
)

// EscalationPage is one conversation handed to a human reviewer.
type EscalationPage struct {
	ThreadKey  string
	Summary    string
	CodesTried []string
	Attempts   int
	RunID      string
	At         time.Time
}

// UpsertEscalation files page in the review queue. An open page already
// filed for the same thread is updated in place; otherwise a new page is
// created. It returns the page id and whether the page was new.
func UpsertEscalation(ctx context.Context, c Client, dbID string, page EscalationPage) (string, bool, error) {
	if dbID == "" {
		return "", false, eris.New("notion: escalation database id is required")
	}
	if page.ThreadKey == "" {
		return "", false, eris.New("notion: escalation thread key is required")
	}

	existing, err := QueryThread(ctx, c, dbID, page.ThreadKey)
	if err != nil {
		return "", false, eris.Wrap(err, "notion: find escalation")
	}

	for _, p := range existing {
		if pageStatus(p) == StatusResolved {
			continue
		}
		id := string(p.ID)
		if _, err := c.UpdatePage(ctx, id, &notionapi.PageUpdateRequest{
			Properties: escalationProperties(page, false),
		}); err != nil {
			return "", false, eris.Wrapf(err, "notion: update escalation %s", id)
		}
		return id, false, nil
	}

	created, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: escalationProperties(page, true),
	})
	if err != nil {
		return "", false, eris.Wrap(err, "notion: create escalation")
	}
	return string(created.ID), true, nil
}

func escalationProperties(page EscalationPage, withTitle bool) notionapi.Properties {
	at := page.At
	if at.IsZero() {
		at = time.Now()
	}
	date := notionapi.Date(at)

	props := notionapi.Properties{
		PropSummary:    richText(page.Summary),
		PropCodesTried: richText(strings.Join(page.CodesTried, ", ")),
		PropAttempts: notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: float64(page.Attempts),
		},
		PropRunID: richText(page.RunID),
		PropStatus: notionapi.StatusProperty{
			Status: notionapi.Status{Name: StatusOpen},
		},
		PropEscalated: notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &date},
		},
	}
	if withTitle {
		props[PropTitle] = notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: page.ThreadKey}},
			},
		}
	}
	return props
}

func richText(s string) notionapi.RichTextProperty {
	// Notion caps a single text object at 2000 characters.
	if r := []rune(s); len(r) > 2000 {
		s = string(r[:2000])
	}
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
		},
	}
}

func pageStatus(p notionapi.Page) string {
	prop, ok := p.Properties[PropStatus]
	if !ok {
		return ""
	}
	switch sp := prop.(type) {
	case *notionapi.StatusProperty:
		return sp.Status.Name
	case notionapi.StatusProperty:
		return sp.Status.Name
	}
	return ""
}
