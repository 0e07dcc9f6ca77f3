package domain

import "time"

// User is the account model shared by the backend and the session client.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Phone        string    `json:"phone,omitempty"`
	Avatar       string    `json:"avatar,omitempty"`
	IsActive     bool      `json:"isActive"`
	IsBanned     bool      `json:"isBanned"`
	Roles        RoleRef   `json:"roles"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Role returns the user's single role.
func (u *User) Role() Role {
	if u == nil {
		return ""
	}
	return u.Roles.Name
}

// CanSignIn reports whether the account may hold a session.
func (u *User) CanSignIn() bool {
	return u != nil && u.IsActive && !u.IsBanned
}
