package domain

import "time"

type Role struct {
	AppID       string    `json:"app_id"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type UserAppRoles struct {
	UserID    string    `json:"user_id"`
	AppID     string    `json:"app_id"`
	Roles     []string  `json:"roles"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Principal is the authenticated caller produced by an authenticator.
type Principal struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email,omitempty"`
	Groups []string `json:"groups,omitempty"`
}
