package storage

import (
	"context"
	"time"

	"github.com/example/wb-supply-bot/internal/db"
	"github.com/example/wb-supply-bot/internal/supply"
)

// AddBookedSlot records the outcome of a successful booking call. Exactly one
// row per booking; later changes are status transitions and supply-number
// attachment only.
func (s *Store) AddBookedSlot(ctx context.Context, userID, accountID int64, slot supply.Slot, autoBooked bool) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
INSERT INTO booked_slots(user_id, wb_account_id, slot_id, warehouse_id, warehouse_name,
                         supply_date, time_slot, coefficient, auto_booked)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id`,
		userID, accountID, slot.ID, slot.WarehouseID, slot.WarehouseName,
		slot.Date, slot.TimeSlot(), slot.Coefficient, autoBooked,
	).Scan(&id)
	return id, db.WrapNotFound(err)
}

// AttachSupplyNumber correlates a continuous-search booking with the supply
// the user was searching for; the number is known before the slot is found.
func (s *Store) AttachSupplyNumber(ctx context.Context, userID, bookedID int64, supplyNumber string) error {
	return s.db.Exec(ctx, `
UPDATE booked_slots SET supply_number=$3 WHERE id=$1 AND user_id=$2`,
		bookedID, userID, supplyNumber)
}

func (s *Store) SetBookedSlotStatus(ctx context.Context, userID, bookedID int64, status string) error {
	return s.db.Exec(ctx, `
UPDATE booked_slots SET status=$3 WHERE id=$1 AND user_id=$2`,
		bookedID, userID, status)
}

func (s *Store) BookedSlots(ctx context.Context, userID int64, limit int) ([]BookedSlot, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx, `
SELECT id, user_id, wb_account_id, slot_id, warehouse_id, warehouse_name,
       supply_date, time_slot, coefficient, supply_number, booked_at, auto_booked, status
FROM booked_slots
WHERE user_id=$1
ORDER BY booked_at DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BookedSlot
	for rows.Next() {
		var b BookedSlot
		if err := rows.Scan(
			&b.ID, &b.UserID, &b.AccountID, &b.SlotID, &b.WarehouseID, &b.WarehouseName,
			&b.SupplyDate, &b.TimeSlot, &b.Coefficient, &b.SupplyNumber, &b.BookedAt, &b.AutoBooked, &b.Status,
		); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CountAutoBookedSince backs the daily auto-booking budget.
func (s *Store) CountAutoBookedSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
SELECT count(*) FROM booked_slots
WHERE user_id=$1 AND auto_booked AND booked_at >= $2`, userID, since).Scan(&n)
	return n, err
}
