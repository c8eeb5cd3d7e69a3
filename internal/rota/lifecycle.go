package rota

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"pharmarota/internal/models"
)

// StaleDraftRetention is how long an unpublished draft survives before the
// sweep removes it.
const StaleDraftRetention = 2 * 30 * 24 * time.Hour

// lifecycle transitions per rota document. There is no published->draft
// path: correcting a published rota goes through the reassignment protocol,
// never through regeneration.
var transitions = map[string][]string{
	models.StatusDraft:     {models.StatusPublished, models.StatusArchived},
	models.StatusPublished: {models.StatusArchived},
	models.StatusArchived:  {},
}

// CanTransition checks whether a status move is allowed.
func CanTransition(from, to string) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// PublishWeek promotes every draft document of a week to published, stamping
// the publisher, the publication time and a shared set id linking the seven
// documents. Fails before touching anything if any document cannot make the
// move.
func PublishWeek(docs []*models.RotaDocument, publishedBy string, now time.Time) (setID string, err error) {
	for _, doc := range docs {
		if !CanTransition(doc.Status, models.StatusPublished) {
			return "", fmt.Errorf("%w: %s -> %s for %s",
				ErrBadTransition, doc.Status, models.StatusPublished, doc.Date.Format("2006-01-02"))
		}
	}
	setID = uuid.NewString()
	for _, doc := range docs {
		doc.Status = models.StatusPublished
		doc.PublishedBy = publishedBy
		publishedAt := now
		doc.PublishedAt = &publishedAt
		doc.PublishedSetID = setID
	}
	return setID, nil
}

// Archive moves one document to its terminal state. Archiving one document
// of a published week leaves the others untouched.
func Archive(doc *models.RotaDocument) error {
	if !CanTransition(doc.Status, models.StatusArchived) {
		return fmt.Errorf("%w: %s -> %s for %s",
			ErrBadTransition, doc.Status, models.StatusArchived, doc.Date.Format("2006-01-02"))
	}
	doc.Status = models.StatusArchived
	return nil
}

// StaleDraftCutoff returns the date before which drafts are swept.
func StaleDraftCutoff(now time.Time) time.Time {
	return models.DateOnly(now.Add(-StaleDraftRetention))
}

// IsStaleDraft reports whether the document falls to the sweep: only drafts,
// only when strictly older than the cutoff. Published and archived documents
// are never swept regardless of age.
func IsStaleDraft(doc *models.RotaDocument, cutoff time.Time) bool {
	return doc.Status == models.StatusDraft && doc.Date.Before(cutoff)
}
