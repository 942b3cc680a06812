package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hansonjs80-design/PTperfect/internal/models"
)

func TestBedRepository_UpdateBed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBedRepository(db, zap.NewNop())

	// 列名排序后生成稳定 SQL：remaining_time 在 status 之前
	mock.ExpectExec(`UPDATE beds SET remaining_time = \$1, status = \$2 WHERE id = \$3`).
		WithArgs(300, "active", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.UpdateBed(context.Background(), 1, map[string]interface{}{
		"status":         "active",
		"remaining_time": 300,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBedRepository_UpdateBed_EmptyPayload(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBedRepository(db, zap.NewNop())

	err = repo.UpdateBed(context.Background(), 1, map[string]interface{}{})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBedRepository_UpdateBed_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBedRepository(db, zap.NewNop())

	mock.ExpectExec(`UPDATE beds SET`).
		WillReturnError(assert.AnError)

	err = repo.UpdateBed(context.Background(), 1, map[string]interface{}{"status": "idle"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update bed 1")
}

func TestBedRepository_UpsertBeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBedRepository(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectPrepare(`INSERT INTO beds .+ ON CONFLICT \(id\) DO UPDATE SET`)
	mock.ExpectExec(`INSERT INTO beds`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO beds`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = repo.UpsertBeds(context.Background(), []models.Bed{
		models.NewIdleBed(1),
		models.NewIdleBed(2),
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBedRepository_UpsertBeds_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBedRepository(db, zap.NewNop())

	err = repo.UpsertBeds(context.Background(), nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBedRepository_UpsertBeds_RollbackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBedRepository(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectPrepare(`INSERT INTO beds`)
	mock.ExpectExec(`INSERT INTO beds`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = repo.UpsertBeds(context.Background(), []models.Bed{models.NewIdleBed(1)})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBedRepository_ListBeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBedRepository(db, zap.NewNop())

	rows := sqlmock.NewRows(bedColumns).
		AddRow(1, "idle", nil, nil, 0, 0, 0, 0, false, false, false, false, false, false, []byte(`{}`), 0).
		AddRow(2, "active", "p1", []byte(`{"id":"c1","name":"커스텀","steps":[]}`), 1, 300, 600, 1700000000000, false, true, false, false, false, false, []byte(`{"0":"memo"}`), 1700000000123)

	mock.ExpectQuery(`SELECT .+ FROM beds ORDER BY id`).WillReturnRows(rows)

	beds, err := repo.ListBeds(context.Background())
	require.NoError(t, err)
	require.Len(t, beds, 2)

	assert.Equal(t, models.BedStatusIdle, beds[0].Status)
	assert.Empty(t, beds[0].CurrentPresetID)
	assert.Nil(t, beds[0].CustomPreset)

	assert.Equal(t, models.BedStatusActive, beds[1].Status)
	assert.Equal(t, "p1", beds[1].CurrentPresetID)
	require.NotNil(t, beds[1].CustomPreset)
	assert.Equal(t, "커스텀", beds[1].CustomPreset.Name)
	assert.True(t, beds[1].IsInjection)
	assert.Equal(t, "memo", beds[1].Memos[0])
	assert.Equal(t, int64(1700000000123), beds[1].LastUpdateTS)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBedRepository_ListBeds_CorruptCustomPresetDropped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBedRepository(db, zap.NewNop())

	rows := sqlmock.NewRows(bedColumns).
		AddRow(1, "idle", nil, []byte(`not-json`), 0, 0, 0, 0, false, false, false, false, false, false, []byte(`{}`), 0)

	mock.ExpectQuery(`SELECT .+ FROM beds ORDER BY id`).WillReturnRows(rows)

	beds, err := repo.ListBeds(context.Background())
	require.NoError(t, err)
	require.Len(t, beds, 1)
	// 损坏的 JSON 丢弃而非整体失败
	assert.Nil(t, beds[0].CustomPreset)
}
