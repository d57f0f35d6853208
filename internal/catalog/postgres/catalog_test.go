package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/sudan-digital-archive/archive-api/internal/archive"
	"github.com/sudan-digital-archive/archive-api/internal/catalog"
)

func testRecord() archive.ArchivedRecord {
	return archive.ArchivedRecord{
		URL:         "https://example.sd/page",
		Language:    archive.LanguageEnglish,
		Title:       "A page",
		Description: "What it was",
		Subjects:    []int{1, 2},
		Private:     false,
		CrawlID:     "crawl-1",
		JobRunID:    "job-1",
		StorageKey:  "wacz/key1.wacz",
		Status:      archive.StatusComplete,
		RequestedBy: "curator@example.sd",
		RecordDate:  time.Unix(1700000000, 0).UTC(),
	}
}

func TestWriteRecordInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cat, err := NewWithPool(mock, "archives")
	require.NoError(t, err)

	rec := testRecord()

	mock.ExpectQuery("INSERT INTO archives").
		WithArgs(
			rec.URL,
			"en",
			rec.Title,
			rec.Description,
			[]int32{1, 2},
			rec.Private,
			rec.CrawlID,
			rec.JobRunID,
			rec.StorageKey,
			rec.Status,
			rec.RequestedBy,
			rec.RecordDate,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := cat.WriteRecord(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRecordNullsEmptyDescription(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cat, err := NewWithPool(mock, "archives")
	require.NoError(t, err)

	rec := testRecord()
	rec.Description = ""

	mock.ExpectQuery("INSERT INTO archives").
		WithArgs(
			rec.URL,
			"en",
			rec.Title,
			nil,
			[]int32{1, 2},
			rec.Private,
			rec.CrawlID,
			rec.JobRunID,
			rec.StorageKey,
			rec.Status,
			rec.RequestedBy,
			rec.RecordDate,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	_, err = cat.WriteRecord(context.Background(), rec)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRecordMapsUniqueViolation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cat, err := NewWithPool(mock, "archives")
	require.NoError(t, err)

	mock.ExpectQuery("INSERT INTO archives").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err = cat.WriteRecord(context.Background(), testRecord())
	require.ErrorIs(t, err, catalog.ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRecordWrapsOtherErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cat, err := NewWithPool(mock, "archives")
	require.NoError(t, err)

	mock.ExpectQuery("INSERT INTO archives").
		WillReturnError(errors.New("connection refused"))

	_, err = cat.WriteRecord(context.Background(), testRecord())
	require.Error(t, err)
	require.NotErrorIs(t, err, catalog.ErrDuplicate)
}

func TestNewWithPoolValidatesTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "archives; drop table archives")
	require.Error(t, err)
}
