package catalog_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-resto/internal/catalog"
)

type stubSource struct {
	c   *catalog.Catalog
	err error
}

func (s *stubSource) Load(context.Context) (*catalog.Catalog, error) { return s.c, s.err }

func TestHolderKeepsPreviousSnapshotOnFailure(t *testing.T) {
	first, err := catalog.New("v1", "INR", []catalog.Entry{{Category: "Breads", Name: "Plain Naan", Price: 25000}})
	require.NoError(t, err)

	src := &stubSource{c: first}
	h := catalog.NewHolder(src, zerolog.Nop())

	_, err = h.Current()
	require.ErrorIs(t, err, catalog.ErrNotLoaded)

	require.NoError(t, h.Load(context.Background()))

	src.c, src.err = nil, errors.New("boom")
	require.Error(t, h.Load(context.Background()))

	got, err := h.Current()
	require.NoError(t, err)
	require.Equal(t, "v1", got.Version())
}

func TestPostgresSourceLoad(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"category", "name", "price_minor", "version"}).
		AddRow("Breads", "Butter Naan", int64(33500), "2024.06.1").
		AddRow("Desserts", "Gulab Jamun", int64(42000), "2024.06.2")
	mock.ExpectQuery("FROM menu_items").WillReturnRows(rows)

	c, err := catalog.PostgresSource{Pool: mock, Currency: "INR"}.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
	require.Equal(t, "2024.06.2", c.Version())

	e, reason := c.Resolve("gulab jamun")
	require.Equal(t, catalog.MatchFound, reason)
	require.EqualValues(t, 42000, e.Price)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSourceSync(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c, err := catalog.New("v9", "INR", []catalog.Entry{
		{Category: "Breads", Name: "Plain Naan", Price: 25000},
		{Category: "Breads", Name: "Butter Naan", Price: 33500},
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE menu_items SET active = false")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 5))
	mock.ExpectExec("INSERT INTO menu_items").
		WithArgs("Breads", "Plain Naan", int64(25000), "v9", 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO menu_items").
		WithArgs("Breads", "Butter Naan", int64(33500), "v9", 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := catalog.PostgresSource{Pool: mock, Currency: "INR"}.Sync(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMenuHandler(t *testing.T) {
	c, err := catalog.New("v3", "INR", []catalog.Entry{{Category: "Breads", Name: "Butter Naan", Price: 33500}})
	require.NoError(t, err)
	h := catalog.NewHolder(&stubSource{c: c}, zerolog.Nop())
	require.NoError(t, h.Load(context.Background()))

	handler := catalog.NewHandler(catalog.HandlerConfig{Holder: h})

	rr := httptest.NewRecorder()
	handler.Menu(rr, httptest.NewRequest(http.MethodGet, "/api/v1/menu", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, `"v3"`, rr.Header().Get("ETag"))
	require.Contains(t, rr.Body.String(), `"label":"Breads - Butter Naan"`)
	require.Contains(t, rr.Body.String(), `"price":"335.00"`)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/menu", nil)
	req.Header.Set("If-None-Match", `"v3"`)
	rr = httptest.NewRecorder()
	handler.Menu(rr, req)
	require.Equal(t, http.StatusNotModified, rr.Code)
}

func TestMenuHandlerUnavailable(t *testing.T) {
	handler := catalog.NewHandler(catalog.HandlerConfig{Holder: catalog.NewHolder(&stubSource{}, zerolog.Nop())})
	rr := httptest.NewRecorder()
	handler.Menu(rr, httptest.NewRequest(http.MethodGet, "/api/v1/menu", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
