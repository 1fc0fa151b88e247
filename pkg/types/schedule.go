package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time expressed in minutes after local midnight.
type TimeOfDay int

const MinutesPerDay TimeOfDay = 24 * 60

// ParseTimeOfDay accepts "HH:MM" and tolerates a trailing seconds part
// ("09:00:00") as produced by SQL time columns.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q, expected HH:MM", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}

	t := TimeOfDay(hour*60 + minute)
	if t > MinutesPerDay {
		return 0, fmt.Errorf("time of day %q is past 24:00", s)
	}

	return t, nil
}

func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// TimeOfDayOf returns the minute of day of t in t's location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time of day must be a string: %w", err)
	}

	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}

	*t = parsed
	return nil
}

// DateLayout is the calendar date wire format.
const DateLayout = "2006-01-02"

type WeeklySlot struct {
	ID        string       `db:"id" json:"id"`
	DonorID   string       `db:"donor_id" json:"donorId"`
	DayOfWeek time.Weekday `db:"day_of_week" json:"dayOfWeek"`
	StartTime TimeOfDay    `db:"start_minute" json:"startTime"`
	EndTime   TimeOfDay    `db:"end_minute" json:"endTime"`
	IsActive  bool         `db:"is_active" json:"isActive"`
	CreatedAt time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time    `db:"updated_at" json:"updatedAt"`
}

// Contains reports whether minute falls inside [StartTime, EndTime).
func (s *WeeklySlot) Contains(minute TimeOfDay) bool {
	return minute >= s.StartTime && minute < s.EndTime
}

// Overlaps reports whether both slots fall on the same day and share any minute.
func (s *WeeklySlot) Overlaps(other *WeeklySlot) bool {
	if s.DayOfWeek != other.DayOfWeek {
		return false
	}
	return s.StartTime < other.EndTime && other.StartTime < s.EndTime
}

// CustomRange overrides the weekly slots for every calendar day in
// [StartDate, EndDate]. StartDate and EndDate carry only a date; their clock
// part is ignored.
type CustomRange struct {
	ID          string     `db:"id" json:"id"`
	DonorID     string     `db:"donor_id" json:"donorId"`
	StartDate   time.Time  `db:"start_date" json:"startDate"`
	EndDate     time.Time  `db:"end_date" json:"endDate"`
	StartTime   *TimeOfDay `db:"start_minute" json:"startTime,omitempty"`
	EndTime     *TimeOfDay `db:"end_minute" json:"endTime,omitempty"`
	IsAvailable bool       `db:"is_available" json:"isAvailable"`
	Reason      *string    `db:"reason" json:"reason,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// AllDay reports whether the range has no time bounds.
func (r *CustomRange) AllDay() bool {
	return r.StartTime == nil || r.EndTime == nil
}

type AvailabilitySchedule struct {
	DonorID      string         `db:"donor_id" json:"donorId"`
	Enabled      bool           `db:"enabled" json:"enabled"`
	WeeklySlots  []*WeeklySlot  `db:"-" json:"weeklySlots"`
	CustomRanges []*CustomRange `db:"-" json:"customRanges"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updatedAt"`
}

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}
