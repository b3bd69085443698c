// Package seed loads bootstrap data (catalogues and the first admin) from YAML.
package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
)

// Fixture is the seed file layout.
type Fixture struct {
	Branches  []string `yaml:"branches"`
	Skills    []string `yaml:"skills"`
	Languages []string `yaml:"languages"`
	Admin     *Admin   `yaml:"admin"`
}

// Admin describes the bootstrap administrator account.
type Admin struct {
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
}

// CatalogStore upserts catalogue rows by name.
type CatalogStore interface {
	Upsert(ctx context.Context, kind models.CatalogKind, name string) (string, error)
}

// UserStore creates the admin when missing.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, exec sqlx.ExtContext, user *models.User) error
}

// Result counts what Apply wrote.
type Result struct {
	CatalogItems int
	AdminCreated bool
}

// Load reads and validates a fixture file.
func Load(path string) (*Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a fixture, rejecting unknown keys.
func Parse(raw []byte) (*Fixture, error) {
	var fixture Fixture
	decoder := yaml.NewDecoder(strings.NewReader(string(raw)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fixture); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	if admin := fixture.Admin; admin != nil {
		if admin.Email == "" || len(admin.Password) < 8 {
			return nil, errors.New("seed admin needs an email and a password of at least 8 characters")
		}
	}
	return &fixture, nil
}

// Apply writes f idempotently: catalogue items are upserted and the admin is
// only created when no user holds that email.
func Apply(ctx context.Context, f *Fixture, catalog CatalogStore, users UserStore, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	result := &Result{}

	sets := []struct {
		kind  models.CatalogKind
		names []string
	}{
		{models.CatalogBranches, f.Branches},
		{models.CatalogSkills, f.Skills},
		{models.CatalogLanguages, f.Languages},
	}
	for _, set := range sets {
		for _, name := range set.names {
			if strings.TrimSpace(name) == "" {
				continue
			}
			if _, err := catalog.Upsert(ctx, set.kind, name); err != nil {
				return result, fmt.Errorf("seed %s %q: %w", set.kind, name, err)
			}
			result.CatalogItems++
		}
	}

	if f.Admin == nil {
		return result, nil
	}
	email := strings.ToLower(strings.TrimSpace(f.Admin.Email))
	_, err := users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		logger.Info("seed admin already exists", zap.String("email", email))
		return result, nil
	case !errors.Is(err, sql.ErrNoRows):
		return result, fmt.Errorf("look up seed admin: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(f.Admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return result, fmt.Errorf("hash seed admin password: %w", err)
	}
	admin := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    f.Admin.FirstName,
		LastName:     f.Admin.LastName,
		Role:         models.RoleAdmin,
		Active:       true,
	}
	if err := users.Create(ctx, nil, admin); err != nil {
		return result, fmt.Errorf("create seed admin: %w", err)
	}
	result.AdminCreated = true
	logger.Info("seed admin created", zap.String("email", email))
	return result, nil
}
