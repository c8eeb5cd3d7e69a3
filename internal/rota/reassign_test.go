package rota

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmarota/internal/models"
)

func weekDocs() []*models.RotaDocument {
	docs := make([]*models.RotaDocument, 0, 7)
	for i := 0; i < 7; i++ {
		docs = append(docs, &models.RotaDocument{
			ID:        int64(i + 1),
			Date:      monday.AddDate(0, 0, i),
			WeekStart: monday,
			Status:    models.StatusDraft,
		})
	}
	return docs
}

func TestNormalizeGranularity(t *testing.T) {
	a := filledAssignment(1, "Asha", models.TypeWard, "Ward 7", "09:00", "17:30")

	t.Run("exact match passes through", func(t *testing.T) {
		parts := NormalizeGranularity(a, "09:00", "17:30")
		require.Len(t, parts, 1)
		assert.Equal(t, a, parts[0])
	})

	t.Run("covering row splits at the boundary", func(t *testing.T) {
		parts := NormalizeGranularity(a, "09:00", "13:00")
		require.Len(t, parts, 2)
		assert.Equal(t, "09:00", parts[0].StartTime)
		assert.Equal(t, "13:00", parts[0].EndTime)
		assert.Equal(t, "13:00", parts[1].StartTime)
		assert.Equal(t, "17:30", parts[1].EndTime)
		// Both halves keep the original occupant.
		require.True(t, parts[0].Filled())
		require.True(t, parts[1].Filled())
		assert.Equal(t, *a.StaffID, *parts[0].StaffID)
		assert.Equal(t, *a.StaffID, *parts[1].StaffID)
	})

	t.Run("afternoon request splits before the boundary", func(t *testing.T) {
		parts := NormalizeGranularity(a, "13:00", "17:30")
		require.Len(t, parts, 2)
		assert.Equal(t, "09:00", parts[0].StartTime)
		assert.Equal(t, "13:00", parts[0].EndTime)
		assert.Equal(t, "13:00", parts[1].StartTime)
	})

	t.Run("non-covering row is untouched", func(t *testing.T) {
		morning := filledAssignment(1, "Asha", models.TypeWard, "Ward 7", "09:00", "13:00")
		parts := NormalizeGranularity(morning, "09:00", "17:30")
		require.Len(t, parts, 1)
		assert.Equal(t, morning, parts[0])
	})
}

func TestApplyReassignment_Slot(t *testing.T) {
	newID := int64(2)

	t.Run("exact slot replaced", func(t *testing.T) {
		docs := weekDocs()
		docs[0].Assignments = []models.Assignment{
			filledAssignment(1, "Asha", models.TypeWard, "Ward 7", "09:00", "13:00"),
		}
		result, err := ApplyReassignment(docs, ReassignRequest{
			Location:        "Ward 7",
			Date:            monday,
			StartTime:       "09:00",
			EndTime:         "13:00",
			OriginalStaffID: 1,
			NewStaffID:      &newID,
			NewStaffName:    "Ben",
			Scope:           ScopeSlot,
		})
		require.NoError(t, err)
		require.Len(t, result.Updated, 1)
		assert.Equal(t, newID, *result.Updated[0].StaffID)
		assert.Equal(t, "Ben", docs[0].Assignments[0].StaffName)
	})

	t.Run("half-day edit splits the stored full day", func(t *testing.T) {
		docs := weekDocs()
		docs[0].Assignments = []models.Assignment{
			filledAssignment(1, "Asha", models.TypeWard, "Ward 7", "09:00", "17:30"),
		}
		result, err := ApplyReassignment(docs, ReassignRequest{
			Location:        "Ward 7",
			Date:            monday,
			StartTime:       "13:00",
			EndTime:         "17:30",
			OriginalStaffID: 1,
			NewStaffID:      &newID,
			NewStaffName:    "Ben",
			Scope:           ScopeSlot,
		})
		require.NoError(t, err)
		require.Len(t, docs[0].Assignments, 2)
		assert.Equal(t, "Asha", docs[0].Assignments[0].StaffName)
		assert.Equal(t, "13:00", docs[0].Assignments[0].EndTime)
		assert.Equal(t, "Ben", docs[0].Assignments[1].StaffName)
		assert.Equal(t, "13:00", docs[0].Assignments[1].StartTime)
		require.Len(t, result.Updated, 1)
		assert.Equal(t, "13:00", result.Updated[0].StartTime)
	})

	t.Run("vacate with nil new staff", func(t *testing.T) {
		docs := weekDocs()
		docs[0].Assignments = []models.Assignment{
			filledAssignment(1, "Asha", models.TypeWard, "Ward 7", "09:00", "13:00"),
		}
		_, err := ApplyReassignment(docs, ReassignRequest{
			Location:        "Ward 7",
			Date:            monday,
			StartTime:       "09:00",
			EndTime:         "13:00",
			OriginalStaffID: 1,
			Scope:           ScopeSlot,
		})
		require.NoError(t, err)
		assert.False(t, docs[0].Assignments[0].Filled())
		assert.Empty(t, docs[0].Assignments[0].StaffName)
	})

	t.Run("fill a gap row with original id zero", func(t *testing.T) {
		docs := weekDocs()
		docs[0].Assignments = []models.Assignment{
			{Type: models.TypeWard, Location: "Ward 7", Date: monday, StartTime: "09:00", EndTime: "13:00"},
		}
		_, err := ApplyReassignment(docs, ReassignRequest{
			Location:     "Ward 7",
			Date:         monday,
			StartTime:    "09:00",
			EndTime:      "13:00",
			NewStaffID:   &newID,
			NewStaffName: "Ben",
			Scope:        ScopeSlot,
		})
		require.NoError(t, err)
		assert.True(t, docs[0].Assignments[0].Filled())
	})

	t.Run("missing slot", func(t *testing.T) {
		docs := weekDocs()
		_, err := ApplyReassignment(docs, ReassignRequest{
			Location:        "Ward 7",
			Date:            monday,
			StartTime:       "09:00",
			OriginalStaffID: 1,
			NewStaffID:      &newID,
			Scope:           ScopeSlot,
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("missing date", func(t *testing.T) {
		docs := weekDocs()
		_, err := ApplyReassignment(docs, ReassignRequest{
			Location:        "Ward 7",
			Date:            monday.AddDate(0, 0, 14),
			StartTime:       "09:00",
			OriginalStaffID: 1,
			NewStaffID:      &newID,
			Scope:           ScopeSlot,
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown scope", func(t *testing.T) {
		_, err := ApplyReassignment(weekDocs(), ReassignRequest{Scope: "fortnight"})
		assert.ErrorIs(t, err, ErrPrecondition)
	})
}

func TestApplyReassignment_Day(t *testing.T) {
	newID := int64(2)
	docs := weekDocs()
	docs[0].Assignments = []models.Assignment{
		filledAssignment(1, "Asha", models.TypeWard, "Ward 7", "09:00", "13:00"),
		filledAssignment(1, "Asha", models.TypeDispensary, "Dispensary", "13:00", "17:30"),
		filledAssignment(3, "Chloe", models.TypeWard, "EAU", "09:00", "17:30"),
	}

	result, err := ApplyReassignment(docs, ReassignRequest{
		Date:            monday,
		OriginalStaffID: 1,
		NewStaffID:      &newID,
		NewStaffName:    "Ben",
		Scope:           ScopeDay,
	})
	require.NoError(t, err)
	assert.Len(t, result.Updated, 2)
	assert.Equal(t, "Ben", docs[0].Assignments[0].StaffName)
	assert.Equal(t, "Ben", docs[0].Assignments[1].StaffName)
	assert.Equal(t, "Chloe", docs[0].Assignments[2].StaffName)
}

func TestApplyReassignment_Week(t *testing.T) {
	newID := int64(2)
	docs := weekDocs()
	docs[0].Assignments = []models.Assignment{
		filledAssignment(1, "Asha", models.TypeWard, "Ward 7", "09:00", "17:30"),
	}
	docs[2].Assignments = []models.Assignment{
		filledAssignment(1, "Asha", models.TypeDispensary, "Dispensary", "09:00", "17:30"),
	}
	docs[4].Status = models.StatusArchived
	docs[4].Assignments = []models.Assignment{
		filledAssignment(1, "Asha", models.TypeWard, "Ward 7", "09:00", "17:30"),
	}

	result, err := ApplyReassignment(docs, ReassignRequest{
		OriginalStaffID: 1,
		NewStaffID:      &newID,
		NewStaffName:    "Ben",
		Scope:           ScopeWeek,
	})
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 7)

	// Mutable dates applied, the archived date reports its own failure; no
	// rollback across dates.
	assert.Equal(t, 1, result.Outcomes[0].Updated)
	assert.Equal(t, 1, result.Outcomes[2].Updated)
	assert.ErrorIs(t, result.Outcomes[4].Err, ErrImmutable)
	assert.Equal(t, "Ben", docs[0].Assignments[0].StaffName)
	assert.Equal(t, "Asha", docs[4].Assignments[0].StaffName)
	assert.Len(t, result.Updated, 2)
}

func TestApplyReassignment_ContinuityMovesWholeBlock(t *testing.T) {
	newID := int64(2)
	docs := weekDocs()
	docs[0].Assignments = []models.Assignment{
		filledAssignment(1, "Asha", models.TypeWard, "ITU", "09:00", "13:00"),
		filledAssignment(1, "Asha", models.TypeWard, "ITU", "13:00", "17:30"),
	}

	// A morning-only window on a continuity-sensitive ward takes both halves.
	result, err := ApplyReassignment(docs, ReassignRequest{
		Date:                monday,
		StartTime:           "09:00",
		EndTime:             "13:00",
		OriginalStaffID:     1,
		NewStaffID:          &newID,
		NewStaffName:        "Ben",
		Scope:               ScopeDay,
		RespectContinuity:   true,
		ContinuityLocations: map[string]bool{"ITU": true},
	})
	require.NoError(t, err)
	assert.Len(t, result.Updated, 2)
	assert.Equal(t, "Ben", docs[0].Assignments[0].StaffName)
	assert.Equal(t, "Ben", docs[0].Assignments[1].StaffName)
}

func TestApplyReassignment_ArchivedSlotRefused(t *testing.T) {
	newID := int64(2)
	docs := weekDocs()
	docs[0].Status = models.StatusArchived
	docs[0].Assignments = []models.Assignment{
		filledAssignment(1, "Asha", models.TypeWard, "Ward 7", "09:00", "13:00"),
	}
	_, err := ApplyReassignment(docs, ReassignRequest{
		Location:        "Ward 7",
		Date:            monday,
		StartTime:       "09:00",
		EndTime:         "13:00",
		OriginalStaffID: 1,
		NewStaffID:      &newID,
		Scope:           ScopeSlot,
	})
	assert.ErrorIs(t, err, ErrImmutable)
}
