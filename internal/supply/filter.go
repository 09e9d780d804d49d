package supply

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Matches reports whether a slot passes the user's criteria at the given
// moment. Allow-lists (warehouses, regions, time windows) match everything
// when empty. Quiet hours gate matching only while notifications are enabled,
// and the interval wraps past midnight when start > end.
func Matches(s Slot, c Criteria, now time.Time) bool {
	if len(c.Warehouses) > 0 && !contains(c.Warehouses, s.WarehouseID) {
		return false
	}
	if len(c.Regions) > 0 && !contains(c.Regions, s.Region) {
		return false
	}
	if s.Coefficient < c.MinCoefficient {
		return false
	}
	if c.MaxCoefficient != nil && s.Coefficient > *c.MaxCoefficient {
		return false
	}
	if len(c.TimeWindows) > 0 {
		h, ok := startHour(s.TimeStart)
		if !ok {
			return false
		}
		inWindow := false
		for _, w := range c.TimeWindows {
			if w.StartHour <= h && h < w.EndHour {
				inWindow = true
				break
			}
		}
		if !inWindow {
			return false
		}
	}
	if c.NotificationsEnabled && c.QuietHoursStart != nil && c.QuietHoursEnd != nil {
		if inQuietHours(now.Hour(), *c.QuietHoursStart, *c.QuietHoursEnd) {
			return false
		}
	}
	return true
}

// Rank orders slots earliest date first, best coefficient first within a
// date. The sort is stable, so equal slots keep their fetch order; this is
// the tie-break contract for "best slot" everywhere in the system.
func Rank(slots []Slot) []Slot {
	out := make([]Slot, len(slots))
	copy(out, slots)
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := dateOnly(out[i].Date), dateOnly(out[j].Date)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return out[i].Coefficient > out[j].Coefficient
	})
	return out
}

// SelectBest is the single authoritative "slot the system would book":
// filter through Matches, then take the head of Rank.
func SelectBest(slots []Slot, c Criteria, now time.Time) (Slot, bool) {
	var matched []Slot
	for _, s := range slots {
		if Matches(s, c, now) {
			matched = append(matched, s)
		}
	}
	if len(matched) == 0 {
		return Slot{}, false
	}
	return Rank(matched)[0], true
}

// Half-open [start, end); wraps midnight when start > end.
func inQuietHours(hour, start, end int) bool {
	if start <= end {
		return start <= hour && hour < end
	}
	return hour >= start || hour < end
}

func startHour(hhmm string) (int, bool) {
	i := strings.IndexByte(hhmm, ':')
	if i < 0 {
		return 0, false
	}
	h, err := strconv.Atoi(hhmm[:i])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
