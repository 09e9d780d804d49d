package supply

import (
	"fmt"
	"time"
)

type Warehouse struct {
	ID      string
	Name    string
	Region  string
	Address string
	Active  bool
}

// Slot is one bookable delivery window at a warehouse. Slot IDs are only
// meaningful within a single fetch: the upstream may hand out a fresh ID for
// the same physical window on the next poll, so slots are never correlated
// across fetches except by re-fetching and matching by ID.
type Slot struct {
	ID            string
	WarehouseID   string
	WarehouseName string
	Date          time.Time
	TimeStart     string // HH:MM
	TimeEnd       string // HH:MM
	Coefficient   float64
	Available     bool
	Region        string
}

func (s Slot) TimeSlot() string {
	return s.TimeStart + "-" + s.TimeEnd
}

func (s Slot) DateString() string {
	return s.Date.Format("02.01.2006")
}

func (s Slot) String() string {
	return fmt.Sprintf("%s %s %s (x%.1f)", s.WarehouseName, s.DateString(), s.TimeSlot(), s.Coefficient)
}

// TimeWindow is an allowed slot-start window, hours in [0,24).
type TimeWindow struct {
	StartHour int `json:"start"`
	EndHour   int `json:"end"`
}

// Criteria is a user's slot filter. Empty allow-lists match everything.
type Criteria struct {
	Warehouses     []string
	Regions        []string
	MinCoefficient float64
	MaxCoefficient *float64
	TimeWindows    []TimeWindow

	AutoBookingEnabled bool
	AutoBookingLimit   int

	NotificationsEnabled bool
	QuietHoursStart      *int // hour 0-23
	QuietHoursEnd        *int
}

func DefaultCriteria() Criteria {
	return Criteria{
		MinCoefficient:       1.0,
		AutoBookingLimit:     5,
		NotificationsEnabled: true,
	}
}

func (c Criteria) Validate() error {
	if c.MaxCoefficient != nil && *c.MaxCoefficient < c.MinCoefficient {
		return fmt.Errorf("max coefficient %.2f below min %.2f", *c.MaxCoefficient, c.MinCoefficient)
	}
	for _, h := range []*int{c.QuietHoursStart, c.QuietHoursEnd} {
		if h != nil && (*h < 0 || *h > 23) {
			return fmt.Errorf("quiet hour %d out of range", *h)
		}
	}
	if c.AutoBookingLimit < 0 {
		return fmt.Errorf("auto booking limit must not be negative")
	}
	return nil
}
