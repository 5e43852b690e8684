package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pharma-listing-crawler/internal/medicine"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	store, err := NewWithDB(sqlx.NewDb(mockDB, "sqlmock"), "medicines")
	require.NoError(t, err)
	return store, mock
}

func TestNewWithDBValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithDB(nil, "")
	assert.Error(t, err)

	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close() //nolint:errcheck

	_, err = NewWithDB(sqlx.NewDb(mockDB, "sqlmock"), "bad-name")
	assert.Error(t, err)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{})
	assert.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS medicines").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExists(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		count int
		want  bool
	}{
		{name: "present", count: 1, want: true},
		{name: "absent", count: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store, mock := newMockStore(t)
			mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM medicines WHERE external_id = ?")).
				WithArgs("arnil-1-34352").
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tt.count))

			got, err := store.Exists(context.Background(), "arnil-1-34352")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestExistsPropagatesError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("database is locked"))

	_, err := store.Exists(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
}

func TestInsert(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rec := medicine.Record{
		ExternalID:       "panadol-10-1234",
		BrandName:        medicine.StringPtr("Panadol"),
		ListingPrice:     medicine.FloatPtr(50),
		DrugExternalLink: "https://dawaai.pk/medicine/panadol-10-1234.html",
	}
	mock.ExpectExec("INSERT OR IGNORE INTO medicines").
		WithArgs(
			"panadol-10-1234",
			nil,
			"Panadol",
			nil,
			nil,
			50.0,
			nil,
			nil,
			nil,
			nil,
			"https://dawaai.pk/medicine/panadol-10-1234.html",
			nil,
		).
		WillReturnResult(sqlmock.NewResult(7, 1))

	id, err := store.Insert(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIgnoredIsDuplicate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT OR IGNORE INTO medicines").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.Insert(context.Background(), medicine.Record{ExternalID: "dup", DrugExternalLink: "u"})
	require.ErrorIs(t, err, medicine.ErrDuplicate)
}

func TestUpdateImagePath(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE medicines SET image_path = ?, updated_at = CURRENT_TIMESTAMP WHERE external_id = ?")).
		WithArgs("7.png", "panadol-10-1234").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.UpdateImagePath(context.Background(), "panadol-10-1234", "7.png"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateImagePathMissingRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE medicines").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateImagePath(context.Background(), "ghost", "1.jpg")
	require.ErrorIs(t, err, medicine.ErrNotFound)
}

func TestStatistics(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*), COUNT(image_path)")).
		WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c", "d", "e", "f", "g"}).
			AddRow(5, 2, 3, 5, 4, "2025-03-01 10:00:00", "2025-03-02 11:30:00"))

	stats, err := store.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.WithImages)
	assert.Equal(t, 3, stats.WithGenericNames)
	assert.Equal(t, 5, stats.WithListingPrices)
	assert.Equal(t, 4, stats.WithDetailPrices)
	require.NotNil(t, stats.FirstRecord)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), *stats.FirstRecord)
	require.NotNil(t, stats.LastRecord)
	assert.Equal(t, time.Date(2025, 3, 2, 11, 30, 0, 0, time.UTC), *stats.LastRecord)
}

func TestStatisticsEmptyTable(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c", "d", "e", "f", "g"}).
			AddRow(0, 0, 0, 0, 0, nil, nil))

	stats, err := store.Statistics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Nil(t, stats.FirstRecord)
	assert.Nil(t, stats.LastRecord)
}

func TestRoundTripOnDisk(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := Open(ctx, Config{Path: filepath.Join(t.TempDir(), "data", "medicines.db")})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.EnsureSchema(ctx))

	rec := medicine.Record{
		ExternalID:       "arnil-1-34352",
		GenericName:      medicine.StringPtr("Diclofenac"),
		DetailPrice:      medicine.FloatPtr(120.5),
		DrugExternalLink: "https://dawaai.pk/medicine/arnil-1-34352.html",
	}
	id, err := store.Insert(ctx, rec)
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = store.Insert(ctx, rec)
	require.ErrorIs(t, err, medicine.ErrDuplicate)

	exists, err := store.Exists(ctx, rec.ExternalID)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.UpdateImagePath(ctx, rec.ExternalID, "1.jpg"))

	stats, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.WithImages)
	assert.Equal(t, 1, stats.WithGenericNames)
	assert.Equal(t, 0, stats.WithListingPrices)
	assert.Equal(t, 1, stats.WithDetailPrices)
	assert.NotNil(t, stats.FirstRecord)
}
