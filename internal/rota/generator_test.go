package rota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmarota/internal/models"
)

func testStaff() []models.StaffMember {
	return []models.StaffMember{
		{ID: 1, Name: "Asha", DefaultRoster: true, IsActive: true},
		{ID: 2, Name: "Ben", DefaultRoster: true, IsActive: true},
		{ID: 3, Name: "Chloe", IsActive: true},
	}
}

func TestGenerate_Preconditions(t *testing.T) {
	base := GenerateInput{
		WeekStart: monday,
		Staff:     testStaff(),
		Weekdays:  []time.Weekday{time.Monday},
	}

	t.Run("no staff", func(t *testing.T) {
		in := base
		in.Staff = nil
		_, err := Generate(in)
		assert.ErrorIs(t, err, ErrPrecondition)
	})

	t.Run("no weekdays", func(t *testing.T) {
		in := base
		in.Weekdays = nil
		_, err := Generate(in)
		assert.ErrorIs(t, err, ErrPrecondition)
	})

	t.Run("week start must be a Monday", func(t *testing.T) {
		in := base
		in.WeekStart = monday.AddDate(0, 0, 1)
		_, err := Generate(in)
		assert.ErrorIs(t, err, ErrPrecondition)
	})
}

func TestGenerate_SevenDocuments(t *testing.T) {
	docs, err := Generate(GenerateInput{
		WeekStart: monday,
		Staff:     testStaff(),
		Requirements: []models.DutyRequirement{
			{ID: 1, Name: "Dispensary", Category: "dispensary", MinStaff: 1, IdealStaff: 1, IsActive: true},
		},
		Weekdays: []time.Weekday{time.Monday, time.Wednesday},
	})
	require.NoError(t, err)
	require.Len(t, docs, 7)

	for i, doc := range docs {
		assert.Equal(t, models.StatusDraft, doc.Status)
		assert.Equal(t, monday, doc.WeekStart)
		assert.Equal(t, monday.AddDate(0, 0, i), doc.Date)
	}

	// Assignments only on selected weekdays; the rest stay as empty shells.
	assert.NotEmpty(t, docs[0].Assignments) // Monday
	assert.Empty(t, docs[1].Assignments)    // Tuesday
	assert.NotEmpty(t, docs[2].Assignments) // Wednesday
	assert.Empty(t, docs[5].Assignments)    // Saturday
}

func TestGenerate_MinBeforeIdeal(t *testing.T) {
	// Two staff, one duty wanting 1..2 and another wanting 1..1. The minimum
	// pass must cover both floors before any duty gets its second person.
	docs, err := Generate(GenerateInput{
		WeekStart: monday,
		Staff: []models.StaffMember{
			{ID: 1, Name: "Asha", DefaultRoster: true, IsActive: true},
			{ID: 2, Name: "Ben", DefaultRoster: true, IsActive: true},
		},
		Requirements: []models.DutyRequirement{
			{ID: 1, Name: "Ward 7", Category: "ward", MinStaff: 1, IdealStaff: 2, Difficulty: 8, IsActive: true},
			{ID: 2, Name: "Dispensary", Category: "dispensary", MinStaff: 1, IdealStaff: 1, Difficulty: 3, IsActive: true},
		},
		Weekdays: []time.Weekday{time.Monday},
	})
	require.NoError(t, err)

	byLocation := make(map[string]int)
	for _, a := range docs[0].Assignments {
		if a.Filled() {
			byLocation[a.Location]++
		}
	}
	assert.Equal(t, 1, byLocation["Ward 7"])
	assert.Equal(t, 1, byLocation["Dispensary"])
}

func TestGenerate_GapRows(t *testing.T) {
	// One person, a duty needing two: the shortfall must appear as an
	// explicit unfilled row, not silently vanish.
	docs, err := Generate(GenerateInput{
		WeekStart: monday,
		Staff: []models.StaffMember{
			{ID: 1, Name: "Asha", DefaultRoster: true, IsActive: true},
		},
		Requirements: []models.DutyRequirement{
			{ID: 1, Name: "Ward 7", Category: "ward", MinStaff: 2, IdealStaff: 2, IsActive: true},
		},
		Weekdays: []time.Weekday{time.Monday},
	})
	require.NoError(t, err)

	assignments := docs[0].Assignments
	require.Len(t, assignments, 2)
	assert.True(t, assignments[0].Filled())
	assert.False(t, assignments[1].Filled())
	assert.Equal(t, "Ward 7", assignments[1].Location)
}

func TestGenerate_Deterministic(t *testing.T) {
	in := GenerateInput{
		WeekStart: monday,
		Staff:     testStaff(),
		Requirements: []models.DutyRequirement{
			{ID: 1, Name: "Ward 7", Category: "ward", MinStaff: 1, IdealStaff: 2, Difficulty: 8, IsActive: true},
			{ID: 2, Name: "EAU", Category: "eau", MinStaff: 1, IdealStaff: 1, Difficulty: 8, IsActive: true},
			{ID: 3, Name: "Dispensary", Category: "dispensary", MinStaff: 1, IdealStaff: 2, Difficulty: 5, IsActive: true},
		},
		Weekdays: []time.Weekday{time.Monday, time.Tuesday, time.Friday},
		Now:      monday,
	}

	first, err := Generate(in)
	require.NoError(t, err)
	second, err := Generate(in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGenerate_DifficultyThenCategoryOrder(t *testing.T) {
	// With one eligible person the single assignment must land on the
	// hardest duty; ties break by category priority, wards before management.
	docs, err := Generate(GenerateInput{
		WeekStart: monday,
		Staff: []models.StaffMember{
			{ID: 1, Name: "Asha", DefaultRoster: true, IsActive: true},
		},
		Requirements: []models.DutyRequirement{
			{ID: 1, Name: "Audit Meeting", Category: "management", MinStaff: 1, IdealStaff: 1, Difficulty: 6, IsActive: true},
			{ID: 2, Name: "Ward 7", Category: "ward", MinStaff: 1, IdealStaff: 1, Difficulty: 6, IsActive: true},
		},
		Weekdays: []time.Weekday{time.Monday},
	})
	require.NoError(t, err)

	var filledAt []string
	for _, a := range docs[0].Assignments {
		if a.Filled() {
			filledAt = append(filledAt, a.Location)
		}
	}
	require.Len(t, filledAt, 1)
	assert.Equal(t, "Ward 7", filledAt[0])
}

func TestGenerate_ClinicPreferredStaff(t *testing.T) {
	docs, err := Generate(GenerateInput{
		WeekStart: monday,
		Staff: []models.StaffMember{
			{ID: 1, Name: "Asha", DefaultRoster: true, WarfarinTrained: true, IsActive: true},
			{ID: 2, Name: "Ben", WarfarinTrained: true, IsActive: true},
		},
		Clinics: []models.ClinicSlot{
			{ID: 1, Name: "Warfarin Clinic", Weekday: time.Monday, StartTime: "14:00", EndTime: "16:00",
				RequiresWarfarin: true, PreferredStaff: []int64{2}, IsActive: true},
		},
		Weekdays: []time.Weekday{time.Monday},
	})
	require.NoError(t, err)

	require.Len(t, docs[0].Assignments, 1)
	a := docs[0].Assignments[0]
	require.True(t, a.Filled())
	assert.Equal(t, int64(2), *a.StaffID)
	assert.Equal(t, models.TypeClinic, a.Type)
}

func TestGenerate_PinnedRole(t *testing.T) {
	pinned := int64(3)
	docs, err := Generate(GenerateInput{
		WeekStart: monday,
		Staff:     testStaff(),
		ExtraRoles: []models.RoleRequest{
			{Name: "Fire Warden", Weekday: time.Monday, StaffID: &pinned},
		},
		Weekdays: []time.Weekday{time.Monday},
	})
	require.NoError(t, err)

	require.Len(t, docs[0].Assignments, 1)
	a := docs[0].Assignments[0]
	require.True(t, a.Filled())
	assert.Equal(t, pinned, *a.StaffID)
	assert.Equal(t, models.DefaultDayStart, a.StartTime)
	assert.Equal(t, models.DefaultDayEnd, a.EndTime)
}

func TestGenerate_DoNotSplitKeepsStaffWholeDay(t *testing.T) {
	// Asha takes the do-not-split aseptics duty in the morning; the afternoon
	// clinic must fall to Ben even though Asha's window is free.
	docs, err := Generate(GenerateInput{
		WeekStart: monday,
		Staff: []models.StaffMember{
			{ID: 1, Name: "Asha", DefaultRoster: true, IsActive: true},
			{ID: 2, Name: "Ben", DefaultRoster: true, IsActive: true},
		},
		Requirements: []models.DutyRequirement{
			{ID: 1, Name: "Aseptics", Category: "ward", MinStaff: 1, IdealStaff: 1, Difficulty: 9,
				StartTime: "09:00", EndTime: "13:00", DoNotSplit: true, IsActive: true},
			{ID: 2, Name: "MI Desk", Category: "ward", MinStaff: 1, IdealStaff: 1, Difficulty: 2,
				StartTime: "14:00", EndTime: "16:00", IsActive: true},
		},
		Weekdays: []time.Weekday{time.Monday},
	})
	require.NoError(t, err)

	occupants := make(map[string]string)
	for _, a := range docs[0].Assignments {
		if a.Filled() {
			occupants[a.Location] = a.StaffName
		}
	}
	assert.Equal(t, "Asha", occupants["Aseptics"])
	assert.Equal(t, "Ben", occupants["MI Desk"])
}

func TestGenerate_DoNotSplitRefusesAlreadyPlacedStaff(t *testing.T) {
	// The exclusivity also holds when the do-not-split duty comes later in
	// the fill order: Asha already holds the morning desk, so the afternoon
	// aseptics session must stay unfilled rather than split her day.
	docs, err := Generate(GenerateInput{
		WeekStart: monday,
		Staff: []models.StaffMember{
			{ID: 1, Name: "Asha", DefaultRoster: true, IsActive: true},
		},
		Requirements: []models.DutyRequirement{
			{ID: 1, Name: "MI Desk", Category: "ward", MinStaff: 1, IdealStaff: 1, Difficulty: 9,
				StartTime: "09:00", EndTime: "13:00", IsActive: true},
			{ID: 2, Name: "Aseptics", Category: "ward", MinStaff: 1, IdealStaff: 1, Difficulty: 2,
				StartTime: "14:00", EndTime: "17:00", DoNotSplit: true, IsActive: true},
		},
		Weekdays: []time.Weekday{time.Monday},
	})
	require.NoError(t, err)

	occupants := make(map[string]bool)
	for _, a := range docs[0].Assignments {
		if a.Filled() {
			occupants[a.Location] = true
		}
	}
	assert.True(t, occupants["MI Desk"])
	assert.False(t, occupants["Aseptics"])
}

func TestGenerate_InactiveRequirementSkipped(t *testing.T) {
	docs, err := Generate(GenerateInput{
		WeekStart: monday,
		Staff:     testStaff(),
		Requirements: []models.DutyRequirement{
			{ID: 1, Name: "Closed Ward", Category: "ward", MinStaff: 1, IdealStaff: 1, IsActive: false},
		},
		Weekdays: []time.Weekday{time.Monday},
	})
	require.NoError(t, err)
	assert.Empty(t, docs[0].Assignments)
}
