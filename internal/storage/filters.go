package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/example/wb-supply-bot/internal/db"
	"github.com/example/wb-supply-bot/internal/supply"
)

// Filters returns the user's criteria, or the defaults if no row exists yet.
func (s *Store) Filters(ctx context.Context, userID int64) (supply.Criteria, error) {
	var (
		c          supply.Criteria
		warehouses []byte
		regions    []byte
		windows    []byte
	)
	err := s.db.QueryRow(ctx, `
SELECT warehouses, regions, min_coefficient, max_coefficient, time_windows,
       auto_booking_enabled, auto_booking_limit,
       notifications_enabled, quiet_hours_start, quiet_hours_end
FROM user_filters WHERE user_id=$1`, userID).Scan(
		&warehouses, &regions, &c.MinCoefficient, &c.MaxCoefficient, &windows,
		&c.AutoBookingEnabled, &c.AutoBookingLimit,
		&c.NotificationsEnabled, &c.QuietHoursStart, &c.QuietHoursEnd,
	)
	if err != nil {
		if errors.Is(db.WrapNotFound(err), db.ErrNotFound) {
			return supply.DefaultCriteria(), nil
		}
		return supply.Criteria{}, err
	}
	if err := json.Unmarshal(warehouses, &c.Warehouses); err != nil {
		return supply.Criteria{}, err
	}
	if err := json.Unmarshal(regions, &c.Regions); err != nil {
		return supply.Criteria{}, err
	}
	if err := json.Unmarshal(windows, &c.TimeWindows); err != nil {
		return supply.Criteria{}, err
	}
	return c, nil
}

// UpdateFilters validates and upserts the whole criteria row.
func (s *Store) UpdateFilters(ctx context.Context, userID int64, c supply.Criteria) error {
	if err := c.Validate(); err != nil {
		return err
	}
	warehouses, err := json.Marshal(orEmpty(c.Warehouses))
	if err != nil {
		return err
	}
	regions, err := json.Marshal(orEmpty(c.Regions))
	if err != nil {
		return err
	}
	windows, err := json.Marshal(orEmptyWindows(c.TimeWindows))
	if err != nil {
		return err
	}
	return s.db.Exec(ctx, `
INSERT INTO user_filters(user_id, warehouses, regions, min_coefficient, max_coefficient,
                         time_windows, auto_booking_enabled, auto_booking_limit,
                         notifications_enabled, quiet_hours_start, quiet_hours_end, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
ON CONFLICT (user_id) DO UPDATE SET
    warehouses=EXCLUDED.warehouses,
    regions=EXCLUDED.regions,
    min_coefficient=EXCLUDED.min_coefficient,
    max_coefficient=EXCLUDED.max_coefficient,
    time_windows=EXCLUDED.time_windows,
    auto_booking_enabled=EXCLUDED.auto_booking_enabled,
    auto_booking_limit=EXCLUDED.auto_booking_limit,
    notifications_enabled=EXCLUDED.notifications_enabled,
    quiet_hours_start=EXCLUDED.quiet_hours_start,
    quiet_hours_end=EXCLUDED.quiet_hours_end,
    updated_at=now()`,
		userID, warehouses, regions, c.MinCoefficient, c.MaxCoefficient,
		windows, c.AutoBookingEnabled, c.AutoBookingLimit,
		c.NotificationsEnabled, c.QuietHoursStart, c.QuietHoursEnd,
	)
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func orEmptyWindows(v []supply.TimeWindow) []supply.TimeWindow {
	if v == nil {
		return []supply.TimeWindow{}
	}
	return v
}
