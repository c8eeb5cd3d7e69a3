// Package models holds the domain records shared by the rota engine,
// the store and the API layer.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Assignment types.
const (
	TypeWard       = "ward"
	TypeDispensary = "dispensary"
	TypeClinic     = "clinic"
	TypeManagement = "management"
	TypeRole       = "role"
)

// Rota document statuses.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Conflict severities.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Default day window applied when a requirement carries no explicit times.
const (
	DefaultDayStart = "09:00"
	DefaultDayEnd   = "17:30"
)

// UnavailabilityRule marks a recurring window when a staff member cannot
// be assigned.
type UnavailabilityRule struct {
	Weekday   time.Weekday `json:"weekday"`
	StartTime string       `json:"start_time"` // "HH:MM"
	EndTime   string       `json:"end_time"`   // "HH:MM"
}

// StaffMember is a pharmacist or technician record. Owned by the reference
// data store; read-only to the engine.
type StaffMember struct {
	ID               int64                `json:"id"`
	Name             string               `json:"name"`
	Role             string               `json:"role"` // band, e.g. "pharmacist", "technician"
	TrainedLocations []string             `json:"trained_locations"`
	TrainingTags     []string             `json:"training_tags"`
	WarfarinTrained  bool                 `json:"warfarin_trained"`
	WorkingDays      []time.Weekday       `json:"working_days"` // empty means assume available
	Unavailability   []UnavailabilityRule `json:"unavailability"`
	DefaultRoster    bool                 `json:"default_roster"`
	IsActive         bool                 `json:"is_active"`
}

// WorksOn reports whether weekday is in the staff member's working-day set.
// An empty set is a deliberate permissive default.
func (s *StaffMember) WorksOn(day time.Weekday) bool {
	if len(s.WorkingDays) == 0 {
		return true
	}
	for _, d := range s.WorkingDays {
		if d == day {
			return true
		}
	}
	return false
}

// HasTraining reports whether the staff member holds the given training tag.
func (s *StaffMember) HasTraining(tag string) bool {
	for _, t := range s.TrainingTags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// TrainedFor reports whether location is in the staff member's trained set.
func (s *StaffMember) TrainedFor(location string) bool {
	for _, l := range s.TrainedLocations {
		if strings.EqualFold(l, location) {
			return true
		}
	}
	return false
}

// DutyRequirement is a named duty slot with staffing targets and constraints.
type DutyRequirement struct {
	ID                  int64          `json:"id"`
	Name                string         `json:"name"`
	Category            string         `json:"category"` // ward, dispensary, management
	MinStaff            int            `json:"min_staff"`
	IdealStaff          int            `json:"ideal_staff"`
	Difficulty          int            `json:"difficulty"` // 1-10, priority tiebreak
	RequiredTraining    string         `json:"required_training,omitempty"`
	DoNotSplit          bool           `json:"do_not_split"`
	ContinuitySensitive bool           `json:"continuity_sensitive"`
	Shareable           bool           `json:"shareable"` // slot may hold concurrent occupants
	Weekdays            []time.Weekday `json:"weekdays,omitempty"` // empty means every selected day
	StartTime           string         `json:"start_time,omitempty"`
	EndTime             string         `json:"end_time,omitempty"`
	IsActive            bool           `json:"is_active"`
}

// Window returns the requirement's time window, defaulted to the standard
// working day when not configured.
func (r *DutyRequirement) Window() (start, end string) {
	start, end = r.StartTime, r.EndTime
	if start == "" {
		start = DefaultDayStart
	}
	if end == "" {
		end = DefaultDayEnd
	}
	return start, end
}

// AllowsWeekday reports whether the requirement may be scheduled on day.
func (r *DutyRequirement) AllowsWeekday(day time.Weekday) bool {
	if len(r.Weekdays) == 0 {
		return true
	}
	for _, d := range r.Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

// ClinicSlot is a recurring, time-boxed external duty.
type ClinicSlot struct {
	ID               int64        `json:"id"`
	Name             string       `json:"name"`
	Weekday          time.Weekday `json:"weekday"`
	StartTime        string       `json:"start_time"`
	EndTime          string       `json:"end_time"`
	RequiresWarfarin bool         `json:"requires_warfarin"`
	PreferredStaff   []int64      `json:"preferred_staff,omitempty"` // highest priority first
	IsActive         bool         `json:"is_active"`
}

// RoleRequest is an ad hoc duty added to a single generation run.
type RoleRequest struct {
	Name      string       `json:"name"`
	Weekday   time.Weekday `json:"weekday"`
	StartTime string       `json:"start_time,omitempty"`
	EndTime   string       `json:"end_time,omitempty"`
	StaffID   *int64       `json:"staff_id,omitempty"` // pin a specific person if set
}

// Assignment places one staff member (or an explicit gap) in one location
// for one time window on one date.
type Assignment struct {
	ID        int64     `json:"id"`
	RotaID    int64     `json:"rota_id"`
	StaffID   *int64    `json:"staff_id"` // nil means unfilled gap
	StaffName string    `json:"staff_name,omitempty"`
	Type      string    `json:"type"`
	Location  string    `json:"location"`
	Date      time.Time `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Category  string    `json:"category,omitempty"`
	Shareable bool      `json:"shareable"`
}

// Filled reports whether the assignment has an occupant.
func (a *Assignment) Filled() bool { return a.StaffID != nil }

// Overlaps reports whether two assignments share any part of their time
// windows. Dates are compared by calendar day.
func (a *Assignment) Overlaps(other *Assignment) bool {
	if !SameDate(a.Date, other.Date) {
		return false
	}
	return WindowsOverlap(a.StartTime, a.EndTime, other.StartTime, other.EndTime)
}

// CellKey returns the deterministic override key for this assignment's cell,
// consumed verbatim by the presentation layer.
func (a *Assignment) CellKey() string {
	return CellKey(a.Type, a.Location, a.Date, a.StartTime, a.EndTime)
}

// Conflict annotates a schedule problem found by the detector.
type Conflict struct {
	Type        string `json:"type"` // understaffed, below_ideal, double_booking, training_mismatch
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// RotaDocument holds one calendar date's assignments and conflicts.
type RotaDocument struct {
	ID             int64             `json:"id"`
	Date           time.Time         `json:"date"`
	WeekStart      time.Time         `json:"week_start"` // Monday anchor
	Status         string            `json:"status"`
	Assignments    []Assignment      `json:"assignments"`
	Conflicts      []Conflict        `json:"conflicts"`
	GeneratedBy    string            `json:"generated_by,omitempty"`
	GeneratedAt    time.Time         `json:"generated_at"`
	PublishedBy    string            `json:"published_by,omitempty"`
	PublishedAt    *time.Time        `json:"published_at,omitempty"`
	PublishedSetID string            `json:"published_set_id,omitempty"`
	CellOverrides  map[string]string `json:"cell_overrides,omitempty"`
	Version        int64             `json:"version"`
}

// Editable reports whether the document accepts direct edits. Published
// documents change only through the reassignment protocol; archived never.
func (d *RotaDocument) Editable() bool { return d.Status == StatusDraft }

// RotaConfiguration is the persisted, resumable generation input for a week.
type RotaConfiguration struct {
	ID                    int64                    `json:"id"`
	WeekStart             time.Time                `json:"week_start"`
	StaffIDs              []int64                  `json:"staff_ids"`
	ClinicIDs             []int64                  `json:"clinic_ids"`
	Weekdays              []time.Weekday           `json:"weekdays"`
	WorkingDayOverrides   map[int64][]time.Weekday `json:"working_day_overrides,omitempty"`
	IgnoredUnavailability map[int64][]int          `json:"ignored_unavailability,omitempty"` // staff id -> rule indexes
	CreatedAt             time.Time                `json:"created_at"`
	SupersededAt          *time.Time               `json:"superseded_at,omitempty"`
}

// AuditEntry records an operator action against the rota store.
type AuditEntry struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// ParseMinutes converts "HH:MM" to minutes since midnight.
func ParseMinutes(hhmm string) (int, error) {
	parts := strings.Split(hhmm, ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid time format: %s", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", hhmm, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", hhmm, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time out of range: %s", hhmm)
	}
	return hour*60 + minute, nil
}

// WindowsOverlap reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Malformed times are treated as non-overlapping.
func WindowsOverlap(aStart, aEnd, bStart, bEnd string) bool {
	as, err1 := ParseMinutes(aStart)
	ae, err2 := ParseMinutes(aEnd)
	bs, err3 := ParseMinutes(bStart)
	be, err4 := ParseMinutes(bEnd)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return false
	}
	return as < be && bs < ae
}

// WindowCovers reports whether [outerStart, outerEnd) fully contains
// [innerStart, innerEnd).
func WindowCovers(outerStart, outerEnd, innerStart, innerEnd string) bool {
	os, err1 := ParseMinutes(outerStart)
	oe, err2 := ParseMinutes(outerEnd)
	is, err3 := ParseMinutes(innerStart)
	ie, err4 := ParseMinutes(innerEnd)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return false
	}
	return os <= is && ie <= oe
}

// SameDate compares two instants by calendar day.
func SameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// DateOnly truncates an instant to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// WeekStartOf returns the Monday anchor of the week containing t.
func WeekStartOf(t time.Time) time.Time {
	d := DateOnly(t)
	offset := (int(d.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return d.AddDate(0, 0, -offset)
}

// CellKey builds the composite override key for a scheduled cell:
// type-location-YYYY-MM-DD-start-end. The encoding is relied on by the
// presentation layer and must round-trip unchanged.
func CellKey(typ, location string, date time.Time, start, end string) string {
	return fmt.Sprintf("%s-%s-%s-%s-%s", typ, location, date.Format("2006-01-02"), start, end)
}

// UnavailableCellKey builds the override key for a whole-day note.
func UnavailableCellKey(date time.Time, start, end string) string {
	return fmt.Sprintf("unavailable-%s-%s-%s", date.Format("2006-01-02"), start, end)
}
