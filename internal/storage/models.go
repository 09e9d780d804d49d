package storage

import "time"

type User struct {
	ID         int64
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	Active     bool
	CreatedAt  time.Time
}

// Account is one marketplace credential set. APIKey is encrypted at rest and
// transparently decrypted by the store.
type Account struct {
	ID        int64
	UserID    int64
	APIKey    string
	Name      string
	Active    bool
	CreatedAt time.Time
	LastCheck *time.Time
}

const (
	StatusBooked    = "booked"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

type BookedSlot struct {
	ID            int64
	UserID        int64
	AccountID     int64
	SlotID        string
	WarehouseID   string
	WarehouseName string
	SupplyDate    time.Time
	TimeSlot      string
	Coefficient   float64
	SupplyNumber  *string
	BookedAt      time.Time
	AutoBooked    bool
	Status        string
}
