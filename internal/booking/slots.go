package booking

import (
	"time"

	"github.com/vincentbai/lynk-embed/internal/models"
)

// DateGroup is the slots available on one date.
type DateGroup struct {
	Date  string
	Slots []models.AppointmentSlot
}

// GroupSlotsByDate groups slots by date, keeping first-seen date order and
// the slot order within each date.
func GroupSlotsByDate(slots []models.AppointmentSlot) []DateGroup {
	var groups []DateGroup
	index := make(map[string]int)
	for _, s := range slots {
		i, ok := index[s.Date]
		if !ok {
			i = len(groups)
			index[s.Date] = i
			groups = append(groups, DateGroup{Date: s.Date})
		}
		groups[i].Slots = append(groups[i].Slots, s)
	}
	return groups
}

// FormatDate renders a YYYY-MM-DD date as "Today", "Tomorrow" or
// "Monday, Jan 2", relative to now in UTC. Unparseable input is returned
// unchanged.
func FormatDate(date string, now time.Time) string {
	now = now.UTC()
	if date == now.Format(time.DateOnly) {
		return "Today"
	}
	if date == now.AddDate(0, 0, 1).Format(time.DateOnly) {
		return "Tomorrow"
	}
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return date
	}
	return t.Format("Monday, Jan 2")
}
