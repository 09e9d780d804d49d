package marketplace

import (
	"fmt"
	"time"

	"github.com/example/wb-supply-bot/internal/supply"
)

// Demo mode serves a deterministic dataset so the rest of the system behaves
// exactly as it would against the real API, including booking rejections.

var demoWarehouses = []supply.Warehouse{
	{ID: "507", Name: "Koledino", Region: "Moscow", Address: "Podolsk, Koledino", Active: true},
	{ID: "686", Name: "Elektrostal", Region: "Moscow", Address: "Elektrostal", Active: true},
	{ID: "1733", Name: "Kazan", Region: "Tatarstan", Address: "Kazan", Active: true},
	{ID: "2737", Name: "Tula", Region: "Tula", Address: "Tula", Active: true},
}

var demoCoefficients = []float64{0.5, 1.0, 1.3, 1.5, 2.0, 3.0}

func (c *Client) demoWarehouseList() []supply.Warehouse {
	out := make([]supply.Warehouse, len(demoWarehouses))
	copy(out, demoWarehouses)
	return out
}

// demoSlotList derives slots from the calendar date alone, so two clients in
// demo mode on the same day see the same set.
func (c *Client) demoSlotList(horizonDays int) []supply.Slot {
	today := time.Now().UTC().Truncate(24 * time.Hour)

	var slots []supply.Slot
	for day := 1; day <= horizonDays; day++ {
		date := today.AddDate(0, 0, day)
		for wi, wh := range demoWarehouses {
			if (day+wi)%3 == 0 {
				continue
			}
			coeff := demoCoefficients[(day*7+wi)%len(demoCoefficients)]
			start, end := "09:00", "12:00"
			if (day+wi)%2 == 0 {
				start, end = "14:00", "18:00"
			}
			slots = append(slots, supply.Slot{
				ID:            fmt.Sprintf("demo-%s-%s", wh.ID, date.Format("20060102")),
				WarehouseID:   wh.ID,
				WarehouseName: wh.Name,
				Date:          date,
				TimeStart:     start,
				TimeEnd:       end,
				Coefficient:   coeff,
				Available:     true,
				Region:        wh.Region,
			})
		}
	}
	return slots
}

func (c *Client) demoBook(slotID string) error {
	if c.bookRand() < c.opts.DemoBookSuccessRate {
		return nil
	}
	return &BookingError{Message: fmt.Sprintf("slot %s already taken", slotID)}
}
