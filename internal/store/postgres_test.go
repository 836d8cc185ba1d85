package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/openbuildings-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS results`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResult(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	r := sampleResult("Cristo Redentor", "589R2RX2+AA", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	mock.ExpectExec(`INSERT INTO results`).
		WithArgs(resultArgs(r)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveResult(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResult_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	r := sampleResult("Cristo Redentor", "A", time.Now().UTC())

	mock.ExpectExec(`INSERT INTO results`).
		WithArgs(resultArgs(r)...).
		WillReturnError(fmt.Errorf("connection reset"))

	err := s.SaveResult(context.Background(), r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: insert result")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func resultRows(mock pgxmock.PgxPoolIface) *pgxmock.Rows {
	return mock.NewRows([]string{
		"id", "landmark", "landmark_lat", "landmark_lon", "latitude", "longitude", "area_in_meters", "confidence",
		"plus_code", "record_index", "source_row", "distance_degrees", "distance_meters", "s2_token", "dataset", "created_at",
	})
}

func TestPostgresStore_ListResults(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	r := sampleResult("Cristo Redentor", "589R2RX2+AA", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	mock.ExpectQuery(`(?s)SELECT .* FROM results WHERE true AND landmark = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("Cristo Redentor", 10, 5).
		WillReturnRows(resultRows(mock).AddRow(resultArgs(r)...))

	got, err := s.ListResults(context.Background(), ResultFilter{Landmark: "Cristo Redentor", Limit: 10, Offset: 5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, r.ID, got[0].ID)
	assert.Equal(t, "589R2RX2+AA", got[0].Building.PlusCode)
	assert.InDelta(t, 120.5, got[0].Building.AreaInMeters, 1e-12)
	assert.Equal(t, r.S2Token, got[0].S2Token)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListResults_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)SELECT .* FROM results WHERE true ORDER BY created_at DESC LIMIT \$1`).
		WithArgs(defaultListLimit).
		WillReturnRows(resultRows(mock))

	got, err := s.ListResults(context.Background(), ResultFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListResults_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)SELECT .* FROM results`).
		WithArgs(defaultListLimit).
		WillReturnError(pgx.ErrTxClosed)

	_, err := s.ListResults(context.Background(), ResultFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: list results")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadBuildings_Batches(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	records := make([]model.Building, 5)
	for i := range records {
		records[i] = model.Building{Latitude: -22.9, Longitude: -43.2, PlusCode: "X", Row: i + 1}
	}

	mock.ExpectCopyFrom(pgx.Identifier{BuildingsTable}, buildingColumns).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{BuildingsTable}, buildingColumns).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{BuildingsTable}, buildingColumns).WillReturnResult(1)

	n, err := s.LoadBuildings(context.Background(), "rio", records, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadBuildings_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	records := []model.Building{{Latitude: 1, Longitude: 1, PlusCode: "X", Row: 1}}
	mock.ExpectCopyFrom(pgx.Identifier{BuildingsTable}, buildingColumns).WillReturnError(fmt.Errorf("disk full"))

	n, err := s.LoadBuildings(context.Background(), "rio", records, 0)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Contains(t, err.Error(), "load buildings batch at 0")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadBuildings_Cancelled(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.LoadBuildings(ctx, "rio", []model.Building{{PlusCode: "X"}}, 10)
	require.Error(t, err)
}

func TestEncodeFootprint(t *testing.T) {
	data, err := EncodeFootprint(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	poly := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 0}, []int{8})
	data, err = EncodeFootprint(poly)
	require.NoError(t, err)
	assert.Zero(t, poly.SRID(), "input must not be modified")

	decoded, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, 4326, decoded.SRID())
	assert.Equal(t, poly.FlatCoords(), decoded.FlatCoords())

	_, err = EncodeFootprint(geom.NewLineStringFlat(geom.XY, []float64{0, 0, 1, 1}))
	require.Error(t, err)
}

func TestBuildingRow(t *testing.T) {
	row, err := buildingRow("rio", model.Building{Latitude: 1, Longitude: 2, AreaInMeters: 3, Confidence: 0.9, PlusCode: "P", Row: 4})
	require.NoError(t, err)
	require.Len(t, row, len(buildingColumns))
	assert.Equal(t, "rio", row[0])
	assert.Equal(t, 4, row[1])
	assert.Equal(t, "P", row[6])
	assert.Nil(t, row[7])
}
