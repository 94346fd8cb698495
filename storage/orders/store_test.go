package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, number string) Order {
	t.Helper()
	order := Order{
		ID:            uuid.New(),
		OrderNumber:   number,
		Status:        StatusPending,
		PaymentStatus: PaymentStatusUnpaid,
		AmountCents:   15750,
		Currency:      "EGP",
	}
	require.NoError(t, db.Create(&order).Error)
	return order
}

func TestFindByNumber(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormStore(db)
	seedOrder(t, db, "ORD-1042")

	found, err := store.FindByNumber(context.Background(), "ORD-1042")
	require.NoError(t, err)
	require.Equal(t, "ORD-1042", found.OrderNumber)
	require.Equal(t, StatusPending, found.Status)

	_, err = store.FindByNumber(context.Background(), "ORD-9999")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.FindByNumber(context.Background(), "  ")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatusWritesOnlyChangedColumns(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormStore(db)
	seedOrder(t, db, "ORD-1042")

	stamp := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	changed, err := store.UpdateStatus(context.Background(), "ORD-1042", StatusUpdate{
		Status:        StatusConfirmed,
		PaymentStatus: PaymentStatusPaid,
		UpdatedAt:     stamp,
	})
	require.NoError(t, err)
	require.True(t, changed)

	found, err := store.FindByNumber(context.Background(), "ORD-1042")
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, found.Status)
	require.Equal(t, PaymentStatusPaid, found.PaymentStatus)
	require.Equal(t, stamp, found.UpdatedAt.UTC())
}

func TestUpdateStatusIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormStore(db)
	seedOrder(t, db, "ORD-1042")

	update := StatusUpdate{Status: StatusConfirmed, PaymentStatus: PaymentStatusPaid}

	changed, err := store.UpdateStatus(context.Background(), "ORD-1042", update)
	require.NoError(t, err)
	require.True(t, changed)

	after, err := store.FindByNumber(context.Background(), "ORD-1042")
	require.NoError(t, err)

	// Replaying the same outcome must not touch the row, including its stamp.
	changed, err = store.UpdateStatus(context.Background(), "ORD-1042", update)
	require.NoError(t, err)
	require.False(t, changed)

	replayed, err := store.FindByNumber(context.Background(), "ORD-1042")
	require.NoError(t, err)
	require.Equal(t, after.UpdatedAt, replayed.UpdatedAt)
}

func TestUpdateStatusPartialChange(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormStore(db)
	seedOrder(t, db, "ORD-1042")

	changed, err := store.UpdateStatus(context.Background(), "ORD-1042", StatusUpdate{
		Status:        StatusPending, // already the stored value
		PaymentStatus: PaymentStatusPending,
	})
	require.NoError(t, err)
	require.True(t, changed)

	found, err := store.FindByNumber(context.Background(), "ORD-1042")
	require.NoError(t, err)
	require.Equal(t, StatusPending, found.Status)
	require.Equal(t, PaymentStatusPending, found.PaymentStatus)
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormStore(db)

	changed, err := store.UpdateStatus(context.Background(), "ORD-404", StatusUpdate{Status: StatusConfirmed})
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, changed)
}
