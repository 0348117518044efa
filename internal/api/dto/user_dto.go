package dto

import (
	"time"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse returns the issued token.
type LoginResponse struct {
	AccessToken string       `json:"accessToken"`
	TokenType   string       `json:"tokenType"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	User        UserResponse `json:"user"`
}

// ChangePasswordRequest payload.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// UserRequest is shared by create and update; omitted fields are untouched on update.
type UserRequest struct {
	Email               *string         `json:"email"`
	Name                *string         `json:"name"`
	Password            *string         `json:"password"`
	Role                *string         `json:"role"`
	Roles               []string        `json:"roles"`
	DepartmentID        *string         `json:"departmentId"`
	SubDepartment       *string         `json:"subDepartment"`
	PermissionOverrides map[string]bool `json:"permissionOverrides"`
	IsActive            *bool           `json:"isActive"`
}

// UserResponse hides credentials.
type UserResponse struct {
	ID                  string              `json:"id"`
	Email               string              `json:"email"`
	Name                string              `json:"name"`
	Role                string              `json:"role"`
	Roles               []string            `json:"roles"`
	DepartmentID        *string             `json:"departmentId"`
	SubDepartment       string              `json:"subDepartment,omitempty"`
	PermissionOverrides map[string]bool     `json:"permissionOverrides,omitempty"`
	Permissions         []domain.Permission `json:"permissions,omitempty"`
	IsActive            bool                `json:"isActive"`
	CreatedAt           time.Time           `json:"createdAt"`
	UpdatedAt           time.Time           `json:"updatedAt"`
}

// NewUserResponse maps a user. permissions may be nil.
func NewUserResponse(u *domain.User, permissions []domain.Permission) UserResponse {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return UserResponse{
		ID:                  u.ID,
		Email:               u.Email,
		Name:                u.Name,
		Role:                u.Role,
		Roles:               roles,
		DepartmentID:        u.DepartmentID,
		SubDepartment:       u.SubDepartment,
		PermissionOverrides: u.PermissionOverrides,
		Permissions:         permissions,
		IsActive:            u.IsActive,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

// NewUserList maps users without permissions.
func NewUserList(users []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for i := range users {
		out = append(out, NewUserResponse(&users[i], nil))
	}
	return out
}
