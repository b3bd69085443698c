package models

import "time"

// CatalogKind names one of the lookup tables users and postings reference.
type CatalogKind string

const (
	CatalogBranches  CatalogKind = "branches"
	CatalogSkills    CatalogKind = "skills"
	CatalogLanguages CatalogKind = "languages"
)

// Valid reports whether k is a known catalogue.
func (k CatalogKind) Valid() bool {
	switch k {
	case CatalogBranches, CatalogSkills, CatalogLanguages:
		return true
	}
	return false
}

// CatalogItem is a row of a branch, skill or language catalogue.
type CatalogItem struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
