package rota

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"pharmarota/internal/models"
)

// GenerateInput is an immutable snapshot of everything one generation run
// needs. The caller loads reference data once and passes it by value; the
// generator never reaches back into storage.
type GenerateInput struct {
	WeekStart    time.Time // must be a Monday
	Staff        []models.StaffMember
	Requirements []models.DutyRequirement
	Clinics      []models.ClinicSlot // already filtered to the operator's selection
	Weekdays     []time.Weekday
	ExtraRoles   []models.RoleRequest
	Options      EligibilityOptions
	GeneratedBy  string
	Now          time.Time
}

// workItem is one fillable row of the ordered work list.
type workItem struct {
	name       string
	typ        string
	category   string
	start      string
	end        string
	minCount   int
	idealCount int
	difficulty int
	training   string
	warfarin   bool
	doNotSplit bool
	shareable  bool
	preferred  []int64
	pinned     *int64
}

func (w *workItem) duty() Duty {
	return Duty{
		Location:         w.name,
		StartTime:        w.start,
		EndTime:          w.end,
		RequiredTraining: w.training,
		RequiresWarfarin: w.warfarin,
		DoNotSplit:       w.doNotSplit,
	}
}

// Generate builds a full week of rota documents for the selected weekdays.
// It always returns a best-effort schedule: understaffing surfaces as gap
// rows for the conflict detector, never as an error. It fails only on
// malformed input, before anything is produced.
func Generate(in GenerateInput) ([]models.RotaDocument, error) {
	if len(in.Staff) == 0 {
		return nil, fmt.Errorf("%w: no staff selected", ErrPrecondition)
	}
	if len(in.Weekdays) == 0 {
		return nil, fmt.Errorf("%w: no weekday selected", ErrPrecondition)
	}
	weekStart := models.DateOnly(in.WeekStart)
	if weekStart.Weekday() != time.Monday {
		return nil, fmt.Errorf("%w: week start %s is not a Monday", ErrPrecondition, weekStart.Format("2006-01-02"))
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	selected := make(map[time.Weekday]bool, len(in.Weekdays))
	for _, d := range in.Weekdays {
		selected[d] = true
	}

	docs := make([]models.RotaDocument, 0, 7)
	for offset := 0; offset < 7; offset++ {
		date := weekStart.AddDate(0, 0, offset)
		doc := models.RotaDocument{
			Date:        date,
			WeekStart:   weekStart,
			Status:      models.StatusDraft,
			GeneratedBy: in.GeneratedBy,
			GeneratedAt: now,
		}
		if selected[date.Weekday()] {
			doc.Assignments = generateDay(in, date)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// generateDay fills the ordered work list for one date. Two passes: minimum
// counts first so scarce staff go to the hardest duties' floors, ideal
// counts after.
func generateDay(in GenerateInput, date time.Time) []models.Assignment {
	items := buildWorkList(in, date.Weekday())
	if len(items) == 0 {
		return nil
	}

	commitments := make(map[int64][]Commitment)
	assignedCount := make(map[int64]int)
	filled := make([][]models.Assignment, len(items))

	fill := func(pass func(w *workItem) int) {
		for i := range items {
			item := &items[i]
			target := pass(item)
			for len(filled[i]) < target {
				staff := pickCandidate(in, item, date, commitments, assignedCount, filled[i])
				if staff == nil {
					break
				}
				id := staff.ID
				filled[i] = append(filled[i], models.Assignment{
					StaffID:   &id,
					StaffName: staff.Name,
					Type:      item.typ,
					Location:  item.name,
					Date:      date,
					StartTime: item.start,
					EndTime:   item.end,
					Category:  item.category,
					Shareable: item.shareable,
				})
				commitments[id] = append(commitments[id], Commitment{
					Location:   item.name,
					StartTime:  item.start,
					EndTime:    item.end,
					DoNotSplit: item.doNotSplit,
				})
				assignedCount[id]++
			}
		}
	}

	fill(func(w *workItem) int { return w.minCount })
	fill(func(w *workItem) int { return w.idealCount })

	var out []models.Assignment
	for i := range items {
		item := &items[i]
		out = append(out, filled[i]...)
		// Explicit gap rows up to the minimum; the conflict detector turns
		// these into error-severity conflicts.
		for g := len(filled[i]); g < item.minCount; g++ {
			out = append(out, models.Assignment{
				Type:      item.typ,
				Location:  item.name,
				Date:      date,
				StartTime: item.start,
				EndTime:   item.end,
				Category:  item.category,
				Shareable: item.shareable,
			})
		}
	}
	return out
}

// buildWorkList assembles and orders the date's duties: active requirements
// allowed on the weekday, selected clinics running that weekday, and ad hoc
// role requests. Descending difficulty, then category priority, then name,
// so scarce staff go to the hardest duties first and output is reproducible.
func buildWorkList(in GenerateInput, weekday time.Weekday) []workItem {
	var items []workItem

	for _, r := range in.Requirements {
		if !r.IsActive || !r.AllowsWeekday(weekday) {
			continue
		}
		start, end := r.Window()
		minCount := r.MinStaff
		ideal := r.IdealStaff
		if ideal < minCount {
			ideal = minCount
		}
		items = append(items, workItem{
			name:       r.Name,
			typ:        requirementType(r.Category),
			category:   r.Category,
			start:      start,
			end:        end,
			minCount:   minCount,
			idealCount: ideal,
			difficulty: r.Difficulty,
			training:   r.RequiredTraining,
			doNotSplit: r.DoNotSplit,
			shareable:  r.Shareable,
		})
	}

	for _, c := range in.Clinics {
		if !c.IsActive || c.Weekday != weekday {
			continue
		}
		items = append(items, workItem{
			name:       c.Name,
			typ:        models.TypeClinic,
			category:   "clinic",
			start:      c.StartTime,
			end:        c.EndTime,
			minCount:   1,
			idealCount: 1,
			warfarin:   c.RequiresWarfarin,
			preferred:  c.PreferredStaff,
		})
	}

	for _, role := range in.ExtraRoles {
		if role.Weekday != weekday {
			continue
		}
		start, end := role.StartTime, role.EndTime
		if start == "" {
			start = models.DefaultDayStart
		}
		if end == "" {
			end = models.DefaultDayEnd
		}
		items = append(items, workItem{
			name:       role.Name,
			typ:        models.TypeRole,
			category:   "role",
			start:      start,
			end:        end,
			minCount:   1,
			idealCount: 1,
			pinned:     role.StaffID,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].difficulty != items[j].difficulty {
			return items[i].difficulty > items[j].difficulty
		}
		pi, pj := categoryPriority(items[i].category), categoryPriority(items[j].category)
		if pi != pj {
			return pi < pj
		}
		return items[i].name < items[j].name
	})
	return items
}

// pickCandidate returns the next eligible staff member for item, or nil when
// nobody fits. Ordering: the clinic's preferred list first, then default
// roster members, then fewer prior assignments that day, then name, then id.
func pickCandidate(in GenerateInput, item *workItem, date time.Time, commitments map[int64][]Commitment, assignedCount map[int64]int, already []models.Assignment) *models.StaffMember {
	if item.pinned != nil {
		if len(already) > 0 {
			return nil
		}
		staff := findStaff(in.Staff, *item.pinned)
		if staff == nil {
			return nil
		}
		if ok := candidateFits(staff, item, date, commitments, already, in.Options); ok {
			return staff
		}
		return nil
	}

	for _, id := range item.preferred {
		staff := findStaff(in.Staff, id)
		if staff == nil {
			continue
		}
		if candidateFits(staff, item, date, commitments, already, in.Options) {
			return staff
		}
	}

	ordered := make([]*models.StaffMember, 0, len(in.Staff))
	for i := range in.Staff {
		ordered = append(ordered, &in.Staff[i])
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.DefaultRoster != b.DefaultRoster {
			return a.DefaultRoster
		}
		if assignedCount[a.ID] != assignedCount[b.ID] {
			return assignedCount[a.ID] < assignedCount[b.ID]
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})

	for _, staff := range ordered {
		if candidateFits(staff, item, date, commitments, already, in.Options) {
			return staff
		}
	}
	return nil
}

func candidateFits(staff *models.StaffMember, item *workItem, date time.Time, commitments map[int64][]Commitment, already []models.Assignment, opts EligibilityOptions) bool {
	if !staff.IsActive {
		return false
	}
	for _, a := range already {
		if a.StaffID != nil && *a.StaffID == staff.ID {
			return false
		}
	}
	existing := commitments[staff.ID]
	// A half-day duty leaves the other half free; overlapping windows block.
	for _, c := range existing {
		if models.WindowsOverlap(c.StartTime, c.EndTime, item.start, item.end) {
			return false
		}
	}
	res := CheckEligibility(staff, item.duty(), date, existing, opts)
	return res.Eligible
}

func findStaff(staff []models.StaffMember, id int64) *models.StaffMember {
	for i := range staff {
		if staff[i].ID == id {
			return &staff[i]
		}
	}
	return nil
}

func requirementType(category string) string {
	switch strings.ToLower(category) {
	case "dispensary":
		return models.TypeDispensary
	case "management":
		return models.TypeManagement
	case "clinic", "pharmacy":
		return models.TypeClinic
	default:
		return models.TypeWard
	}
}

// categoryPriority orders work within equal difficulty: wards and the acute
// assessment unit first, dispensary second, clinics third, management last.
func categoryPriority(category string) int {
	switch strings.ToLower(category) {
	case "ward", "eau":
		return 0
	case "dispensary":
		return 1
	case "clinic", "pharmacy", "role":
		return 2
	case "management":
		return 3
	default:
		return 2
	}
}
