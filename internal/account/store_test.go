package account

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/acquisition-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresStore(mock), mock
}

var candidateCols = []string{"id", "platform", "handle", "source", "email", "profile", "active", "country", "created_at", "updated_at"}

func TestGetByHandle(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM candidates WHERE platform = \\$1 AND handle = \\$2").
		WithArgs("instagram", "anna").
		WillReturnRows(pgxmock.NewRows(candidateCols).
			AddRow(int64(5), "instagram", "anna", "tag", "", []byte(`{"follower_count":1200,"is_private":false,"enriched_at":"2026-10-01T00:00:00Z"}`), true, "DE", now, now))

	c, err := s.GetByHandle(context.Background(), model.PlatformInstagram, "anna")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(5), c.ID)
	assert.Equal(t, "DE", c.Country)
	require.NotNil(t, c.Profile)
	assert.Equal(t, 1200, c.Profile.FollowerCount)
	assert.True(t, c.HasProfile())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByHandle_Missing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM candidates WHERE platform").
		WithArgs("tiktok", "ghost").
		WillReturnError(pgx.ErrNoRows)

	c, err := s.GetByHandle(context.Background(), model.PlatformTikTok, "ghost")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestInsert_Created(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	c := &model.Candidate{Platform: model.PlatformInstagram, Handle: "anna", Source: model.SourceTag, Active: true, Country: "DE"}

	mock.ExpectQuery("INSERT INTO candidates").
		WithArgs("instagram", "anna", "tag", (*string)(nil), "https://www.instagram.com/anna/", []byte(nil), true, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(9), now, now))

	created, err := s.Insert(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(9), c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_Conflict(t *testing.T) {
	s, mock := newMockStore(t)
	c := &model.Candidate{Platform: model.PlatformInstagram, Handle: "anna", Source: model.SourceTag}

	mock.ExpectQuery("ON CONFLICT \\(platform, handle\\) DO NOTHING").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	created, err := s.Insert(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestUpdateCountry(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE candidates SET country").
		WithArgs(int64(5), "AT").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateCountry(context.Background(), 5, "AT"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProfile(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE candidates SET profile").
		WithArgs(int64(5), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateProfile(context.Background(), 5, model.Profile{FollowerCount: 10}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListForEnrichment(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("WHERE active AND platform = \\$1 AND country = \\$2 AND profile IS NULL ORDER BY updated_at, id LIMIT \\$3").
		WithArgs("instagram", "DE", 10).
		WillReturnRows(pgxmock.NewRows(candidateCols).
			AddRow(int64(1), "instagram", "a", "tag", "", []byte(nil), true, "DE", now, now).
			AddRow(int64(2), "instagram", "b", "geo", "b@example.com", []byte(nil), true, "DE", now, now))

	cs, err := s.ListForEnrichment(context.Background(), EnrichmentFilter{
		Platform: model.PlatformInstagram, Country: "DE", OnlyMissingData: true, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Nil(t, cs[0].Profile)
	assert.Equal(t, "b@example.com", cs[1].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListForEnrichment_ByIDs(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("WHERE active AND id = ANY\\(\\$1\\)").
		WithArgs([]int64{3, 4}, 50).
		WillReturnRows(pgxmock.NewRows(candidateCols))

	cs, err := s.ListForEnrichment(context.Background(), EnrichmentFilter{IDs: []int64{3, 4}})
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestCountDiscoveredSince(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Now().Truncate(24 * time.Hour)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM candidates").
		WithArgs("instagram", "tag", since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(42))

	n, err := s.CountDiscoveredSince(context.Background(), model.PlatformInstagram, model.SourceTag, since)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestStats(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("LEFT JOIN LATERAL").
		WithArgs("instagram", "DE", "").
		WillReturnRows(pgxmock.NewRows([]string{"total", "with", "missing", "failed", "never"}).
			AddRow(100, 60, 40, 7, 25))

	st, err := s.Stats(context.Background(), model.StatsScope{Platform: model.PlatformInstagram, Country: "DE"})
	require.NoError(t, err)
	assert.Equal(t, 100, st.TotalCandidates)
	assert.Equal(t, 60, st.WithData)
	assert.Equal(t, 40, st.MissingData)
	assert.Equal(t, 7, st.FailedAttempts)
	assert.Equal(t, 25, st.NeverAttempted)
	assert.Nil(t, st.LastRun)
}

func TestInsertBatch(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_bulk_candidates"},
		[]string{"platform", "handle", "source", "email", "profile_url", "active", "country"}).
		WillReturnResult(2)
	mock.ExpectExec("ON CONFLICT").WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.InsertBatch(context.Background(), []model.Candidate{
		{Platform: model.PlatformInstagram, Handle: "a", Source: model.SourceImport, Active: true, Country: "DE"},
		{Platform: model.PlatformInstagram, Handle: "b", Source: model.SourceImport, Active: true, Country: "DE"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
