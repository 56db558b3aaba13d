package models

import "time"

// User roles within a firm.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// User represents a staff account. Auth and identity only; a user belongs
// to exactly one firm and all domain data is scoped by FirmID.
type User struct {
	UserID       string    `json:"user_id"`
	FirmID       string    `json:"firm_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`
}

// Firm is the tenant organization.
type Firm struct {
	FirmID     string    `json:"firm_id"`
	Name       string    `json:"name"`
	InviteCode string    `json:"invite_code"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}
