package repository

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/centaur-backend/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

// sqlLike собирает регулярку из фрагментов запроса в заданном порядке.
func sqlLike(parts ...string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(quoted, ".*")
}

var applyTransitionSQL = sqlLike(
	"UPDATE orders SET",
	"WHERE id = $1",
	"AND ($8::text[] IS NULL OR status = ANY($8))",
	"AND ($9::text[] IS NULL OR escrow_status = ANY($9))",
	"AND ($10::numeric IS NULL OR amount_released = $10)",
	"RETURNING",
)

func TestOrderRepository_ApplyTransition_GuardsOnStatus(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)
	orderID := uuid.New()
	released := "released"

	mock.ExpectBegin()
	mock.ExpectQuery(applyTransitionSQL).
		WithArgs(orderID, nil, released, 900.0, 0.0, 100.0, nil,
			pq.Array([]string{"in_progress"}), pq.Array([]string{"held", "partial_release"}), nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "escrow_status", "amount_released", "platform_fee"}).
			AddRow(orderID.String(), "in_progress", released, 900.0, 100.0))
	mock.ExpectCommit()

	order, err := repo.ApplyTransition(ctx, models.OrderTransition{
		OrderID:              orderID,
		ExpectedStatus:       []string{"in_progress"},
		ExpectedEscrowStatus: []string{"held", "partial_release"},
		EscrowStatus:         &released,
		AddReleased:          900,
		AddPlatformFee:       100,
	})
	require.NoError(t, err)
	assert.Equal(t, orderID, order.ID)
	assert.Equal(t, released, order.EscrowStatus)
	assert.InDelta(t, 900, order.AmountReleased, 0.001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ApplyTransition_NoGuardPassesNullArrays(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)
	orderID := uuid.New()
	cancelled := "cancelled"

	mock.ExpectBegin()
	mock.ExpectQuery(applyTransitionSQL).
		WithArgs(orderID, cancelled, nil, 0.0, 0.0, 0.0, nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(orderID.String(), cancelled))
	mock.ExpectCommit()

	order, err := repo.ApplyTransition(ctx, models.OrderTransition{OrderID: orderID, Status: &cancelled})
	require.NoError(t, err)
	assert.Equal(t, cancelled, order.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ApplyTransition_StaleStatusIsConflict(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)
	orderID := uuid.New()

	// Заказ ушёл в disputed: UPDATE не находит строку, сама строка есть.
	mock.ExpectBegin()
	mock.ExpectQuery(applyTransitionSQL).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`)).
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := repo.ApplyTransition(ctx, models.OrderTransition{OrderID: orderID, ExpectedStatus: []string{"in_progress"}})
	assert.ErrorIs(t, err, ErrStateConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ApplyTransition_MissingOrder(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)
	orderID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(applyTransitionSQL).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := repo.ApplyTransition(ctx, models.OrderTransition{OrderID: orderID})
	assert.ErrorIs(t, err, ErrOrderNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ApplyTransition_MilestoneMovedIsConflict(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)
	orderID, milestoneID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(applyTransitionSQL).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(orderID.String()))
	mock.ExpectExec(sqlLike("UPDATE order_milestones SET", "WHERE id = $1 AND order_id = $5 AND status = $2")).
		WithArgs(milestoneID, "submitted", "paid", nil, orderID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.ApplyTransition(ctx, models.OrderTransition{
		OrderID:   orderID,
		Milestone: &models.MilestoneTransition{MilestoneID: milestoneID, ExpectedStatus: "submitted", Status: "paid"},
	})
	assert.ErrorIs(t, err, ErrStateConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}
