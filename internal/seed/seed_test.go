package seed

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
)

const sample = `
branches: [Downtown, Eastside]
skills:
  - First aid
  - " "
languages: [Spanish]
admin:
  email: Admin@Example.org
  password: change-me-now
  first_name: Ada
  last_name: Admin
`

type catalogRecorder struct{ upserts []string }

func (c *catalogRecorder) Upsert(ctx context.Context, kind models.CatalogKind, name string) (string, error) {
	c.upserts = append(c.upserts, string(kind)+":"+name)
	return "id", nil
}

type userRecorder struct {
	existing map[string]bool
	created  []*models.User
}

func (u *userRecorder) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u.existing[email] {
		return &models.User{Email: email}, nil
	}
	return nil, sql.ErrNoRows
}

func (u *userRecorder) Create(ctx context.Context, exec sqlx.ExtContext, user *models.User) error {
	u.created = append(u.created, user)
	return nil
}

func TestParseAndApply(t *testing.T) {
	fixture, err := Parse([]byte(sample))
	require.NoError(t, err)

	catalog := &catalogRecorder{}
	users := &userRecorder{}
	result, err := Apply(context.Background(), fixture, catalog, users, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"branches:Downtown", "branches:Eastside", "skills:First aid", "languages:Spanish"}, catalog.upserts)
	assert.Equal(t, 4, result.CatalogItems)
	assert.True(t, result.AdminCreated)

	require.Len(t, users.created, 1)
	admin := users.created[0]
	assert.Equal(t, "admin@example.org", admin.Email)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.True(t, admin.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("change-me-now")))
}

func TestApplyKeepsExistingAdmin(t *testing.T) {
	fixture, err := Parse([]byte(sample))
	require.NoError(t, err)

	users := &userRecorder{existing: map[string]bool{"admin@example.org": true}}
	result, err := Apply(context.Background(), fixture, &catalogRecorder{}, users, nil)
	require.NoError(t, err)
	assert.False(t, result.AdminCreated)
	assert.Empty(t, users.created)
}

func TestParseRejectsBadFixtures(t *testing.T) {
	_, err := Parse([]byte("branchez: [x]"))
	assert.Error(t, err)

	_, err = Parse([]byte("admin:\n  email: a@b.c\n  password: short\n"))
	assert.Error(t, err)
}
