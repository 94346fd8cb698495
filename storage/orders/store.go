package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ErrNotFound is returned when no order carries the requested order number.
var ErrNotFound = errors.New("orders: order not found")

// StatusUpdate carries the desired status columns. Empty fields are left
// untouched; UpdatedAt defaults to the current time when zero.
type StatusUpdate struct {
	Status        string
	PaymentStatus string
	UpdatedAt     time.Time
}

// Store is the order-management collaborator as seen from the payment core:
// a lookup by externally-visible order number and an idempotent status write.
type Store interface {
	FindByNumber(ctx context.Context, orderNumber string) (*Order, error)
	// UpdateStatus writes only the columns whose value actually changes and
	// reports whether anything was written. Re-applying an identical outcome
	// is a no-op.
	UpdateStatus(ctx context.Context, orderNumber string, update StatusUpdate) (bool, error)
}

// GormStore implements Store over a relational database. Production runs it
// against postgres; tests use an in-memory sqlite database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	number := strings.TrimSpace(orderNumber)
	if number == "" {
		return nil, ErrNotFound
	}
	var order Order
	err := s.db.WithContext(ctx).First(&order, "order_number = ?", number).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *GormStore) UpdateStatus(ctx context.Context, orderNumber string, update StatusUpdate) (bool, error) {
	current, err := s.FindByNumber(ctx, orderNumber)
	if err != nil {
		return false, err
	}

	changes := map[string]any{}
	if update.Status != "" && update.Status != current.Status {
		changes["status"] = update.Status
	}
	if update.PaymentStatus != "" && update.PaymentStatus != current.PaymentStatus {
		changes["payment_status"] = update.PaymentStatus
	}
	if len(changes) == 0 {
		return false, nil
	}

	stamp := update.UpdatedAt
	if stamp.IsZero() {
		stamp = time.Now().UTC()
	}
	changes["updated_at"] = stamp

	err = s.db.WithContext(ctx).
		Model(&Order{}).
		Where("order_number = ?", current.OrderNumber).
		Updates(changes).Error
	if err != nil {
		return false, err
	}
	return true, nil
}
