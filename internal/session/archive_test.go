package session

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "travel-assistant/internal/common/errors"
	"travel-assistant/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiptArchive_Archive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO turn_receipts").
		WithArgs(sqlmock.AnyArg(), "t1", "weather", "Sunny, 24C.", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	archive := NewReceiptArchive(db)
	stored, err := archive.Archive(context.Background(), "t1", models.IntentWeather, models.Receipts{
		Facts: []models.Fact{{Source: "weather", Key: "forecast", Value: "sunny"}},
		Reply: "Sunny, 24C.",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiptArchive_ArchiveFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO turn_receipts").WillReturnError(errors.New("relation does not exist"))

	_, err = NewReceiptArchive(db).Archive(context.Background(), "t1", models.IntentPolicy, models.Receipts{})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeReceiptArchiveFailed, apperrors.CodeOf(err))
}

func TestReceiptArchive_Recent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "reply", "facts", "decisions", "created_at"}).
		AddRow("r1", "Carry-on limit is 7kg.",
			[]byte(`[{"source":"rag","key":"policy","value":"7kg"}]`),
			[]byte(`[{"stage":"router","outcome":"policy"}]`),
			created)

	mock.ExpectQuery("SELECT id, reply, facts, decisions, created_at").
		WithArgs("t1", 5).
		WillReturnRows(rows)

	out, err := NewReceiptArchive(db).Recent(context.Background(), "t1", 5)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "r1", out[0].ID)
	assert.Equal(t, "7kg", out[0].Facts[0].Value)
	assert.Equal(t, "policy", out[0].Decisions[0].Outcome)
	assert.Equal(t, created, out[0].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
