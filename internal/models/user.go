package models

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)

func (r UserRole) CanAuthor() bool {
	return r == RoleTeacher || r == RoleAdmin
}

// Principal is the authenticated caller resolved by the auth middleware.
type Principal struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Username string   `json:"username,omitempty"`
	Role     UserRole `json:"role"`
}
