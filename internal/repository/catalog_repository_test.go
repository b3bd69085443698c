package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
)

func TestCatalogListBranches(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, created_at, updated_at FROM branches ORDER BY name ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at", "updated_at"}).
			AddRow("b1", "Downtown", now, now).
			AddRow("b2", "Eastside", now, now))

	items, err := repo.List(context.Background(), models.CatalogBranches)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRejectsUnknownKind(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	_, err := repo.List(context.Background(), "users; DROP TABLE users")
	assert.Error(t, err)
}

func TestCatalogDeleteInUse(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM branches WHERE id = $1")).WithArgs("b1").WillReturnError(&pq.Error{Code: "23503"})

	assert.ErrorIs(t, repo.Delete(context.Background(), models.CatalogBranches, "b1"), ErrInUse)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogUpsertReturnsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO languages (id, name, created_at, updated_at) VALUES ($1, $2, $3, $3)\nON CONFLICT (name)")).
		WithArgs(sqlmock.AnyArg(), "French", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("lang-1"))

	id, err := repo.Upsert(context.Background(), models.CatalogLanguages, " French ")
	require.NoError(t, err)
	assert.Equal(t, "lang-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogCountExisting(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM skills WHERE id = ANY($1)")).
		WithArgs(pq.Array([]string{"s1", "s2"})).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	n, err := repo.CountExisting(context.Background(), models.CatalogSkills, []string{"s1", "s2"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.CountExisting(context.Background(), models.CatalogSkills, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
