package supply

import (
	"testing"
	"time"
)

func slot(id, warehouse string, date time.Time, start string, coeff float64) Slot {
	return Slot{
		ID:            id,
		WarehouseID:   warehouse,
		WarehouseName: "WH " + warehouse,
		Date:          date,
		TimeStart:     start,
		TimeEnd:       "18:00",
		Coefficient:   coeff,
		Available:     true,
	}
}

func TestMatches(t *testing.T) {
	day := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	noon := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	maxTwo := 2.0
	q22, q6 := 22, 6

	tests := []struct {
		name string
		slot Slot
		c    Criteria
		now  time.Time
		want bool
	}{
		{
			name: "defaults accept coefficient at minimum",
			slot: slot("a", "507", day, "09:00", 1.0),
			c:    DefaultCriteria(),
			now:  noon,
			want: true,
		},
		{
			name: "below minimum coefficient",
			slot: slot("a", "507", day, "09:00", 0.9),
			c:    DefaultCriteria(),
			now:  noon,
			want: false,
		},
		{
			name: "above maximum coefficient",
			slot: slot("a", "507", day, "09:00", 2.5),
			c:    Criteria{MaxCoefficient: &maxTwo},
			now:  noon,
			want: false,
		},
		{
			name: "warehouse allow-list hit",
			slot: slot("a", "507", day, "09:00", 1.5),
			c:    Criteria{Warehouses: []string{"507", "686"}},
			now:  noon,
			want: true,
		},
		{
			name: "warehouse allow-list miss",
			slot: slot("a", "1733", day, "09:00", 1.5),
			c:    Criteria{Warehouses: []string{"507", "686"}},
			now:  noon,
			want: false,
		},
		{
			name: "time window excludes evening slot",
			slot: slot("a", "507", day, "19:00", 1.5),
			c:    Criteria{TimeWindows: []TimeWindow{{StartHour: 8, EndHour: 18}}},
			now:  noon,
			want: false,
		},
		{
			name: "time window end hour is exclusive",
			slot: slot("a", "507", day, "18:00", 1.5),
			c:    Criteria{TimeWindows: []TimeWindow{{StartHour: 8, EndHour: 18}}},
			now:  noon,
			want: false,
		},
		{
			name: "quiet hours wrap past midnight",
			slot: slot("a", "507", day, "09:00", 1.5),
			c: Criteria{
				NotificationsEnabled: true,
				QuietHoursStart:      &q22,
				QuietHoursEnd:        &q6,
			},
			now:  time.Date(2026, 8, 25, 23, 0, 0, 0, time.UTC),
			want: false,
		},
		{
			name: "outside wrapped quiet hours",
			slot: slot("a", "507", day, "09:00", 1.5),
			c: Criteria{
				NotificationsEnabled: true,
				QuietHoursStart:      &q22,
				QuietHoursEnd:        &q6,
			},
			now:  time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
			want: true,
		},
		{
			name: "quiet hours ignored when notifications are off",
			slot: slot("a", "507", day, "09:00", 1.5),
			c: Criteria{
				NotificationsEnabled: false,
				QuietHoursStart:      &q22,
				QuietHoursEnd:        &q6,
			},
			now:  time.Date(2026, 8, 25, 23, 0, 0, 0, time.UTC),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.slot, tt.c, tt.now); got != tt.want {
				t.Fatalf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRankEarliestDateThenCoefficient(t *testing.T) {
	d1 := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)

	got := Rank([]Slot{
		slot("late-high", "507", d2, "09:00", 3.0),
		slot("early-low", "507", d1, "09:00", 1.0),
		slot("early-high", "507", d1, "14:00", 2.0),
	})

	wantOrder := []string{"early-high", "early-low", "late-high"}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestRankStableOnTies(t *testing.T) {
	d := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	in := []Slot{
		slot("first", "507", d, "09:00", 1.5),
		slot("second", "686", d, "14:00", 1.5),
	}
	got := Rank(in)
	if got[0].ID != "first" || got[1].ID != "second" {
		t.Fatalf("tie broke fetch order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestSelectBest(t *testing.T) {
	d1 := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	slots := []Slot{
		slot("low", "507", d1, "09:00", 0.5),    // filtered out
		slot("later", "507", d2, "09:00", 3.0),  // later date loses
		slot("winner", "507", d1, "14:00", 1.5), // earliest date, passes filter
	}

	best, ok := SelectBest(slots, DefaultCriteria(), now)
	if !ok {
		t.Fatal("expected a slot")
	}
	if best.ID != "winner" {
		t.Fatalf("got %s, want winner", best.ID)
	}

	_, ok = SelectBest(slots, Criteria{MinCoefficient: 10}, now)
	if ok {
		t.Fatal("expected no slot above coefficient 10")
	}
}
