package dto

import "github.com/noah-isme/volunteer-scheduler-api/internal/models"

// CatalogRequest creates or renames a branch, skill or language.
type CatalogRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// UpdateUserRequest edits a profile. Role and Active are admin only.
type UpdateUserRequest struct {
	FirstName   string           `json:"first_name" validate:"required,max=100"`
	LastName    string           `json:"last_name" validate:"required,max=100"`
	PhoneNumber string           `json:"phone_number" validate:"omitempty,max=32"`
	Role        *models.UserRole `json:"role" validate:"omitempty,oneof=ADMIN EMPLOYEE VOLUNTEER"`
	Active      *bool            `json:"active"`
	BranchIDs   []string         `json:"branch_ids" validate:"omitempty,dive,uuid"`
	SkillIDs    []string         `json:"skill_ids" validate:"omitempty,dive,uuid"`
	LanguageIDs []string         `json:"language_ids" validate:"omitempty,dive,uuid"`
}

// UserListQuery binds GET /users query parameters.
type UserListQuery struct {
	Role      string `form:"role" validate:"omitempty,oneof=ADMIN EMPLOYEE VOLUNTEER"`
	Active    *bool  `form:"active"`
	BranchID  string `form:"branch_id" validate:"omitempty,uuid"`
	Search    string `form:"search" validate:"omitempty,max=100"`
	Page      int    `form:"page" validate:"omitempty,min=1"`
	PageSize  int    `form:"page_size" validate:"omitempty,min=1,max=100"`
	SortBy    string `form:"sort_by" validate:"omitempty,oneof=email first_name last_name created_at"`
	SortOrder string `form:"sort_order" validate:"omitempty,oneof=asc desc ASC DESC"`
}

// CreateInviteRequest invites an email address with a role.
type CreateInviteRequest struct {
	Email string          `json:"email" validate:"required,email"`
	Role  models.UserRole `json:"role" validate:"required,oneof=ADMIN EMPLOYEE VOLUNTEER"`
}

// InviteResponse is an invite plus, right after creation, its token.
type InviteResponse struct {
	models.UserInvite
	InviteToken string `json:"invite_token,omitempty"`
}
