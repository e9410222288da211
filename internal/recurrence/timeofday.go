package recurrence

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" in 24-hour form. The format is exact: two
// digits, a colon, two digits, so every stored value round-trips through
// String unchanged.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	if len(raw) != 5 || raw[2] != ':' ||
		!isDigit(raw[0]) || !isDigit(raw[1]) || !isDigit(raw[3]) || !isDigit(raw[4]) {
		return TimeOfDay{}, fmt.Errorf("recurrence: invalid time of day %q", raw)
	}
	t := TimeOfDay{
		Hour:   int(raw[0]-'0')*10 + int(raw[1]-'0'),
		Minute: int(raw[3]-'0')*10 + int(raw[4]-'0'),
	}
	if t.Hour > 23 || t.Minute > 59 {
		return TimeOfDay{}, fmt.Errorf("recurrence: time of day %q out of range", raw)
	}
	return t, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// String renders the time as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MarshalJSON renders the time as a "HH:MM" JSON string.
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts a "HH:MM" JSON string.
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// On combines the time of day with the date portion of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}
