package directory

import (
	"errors"
	"time"
)

const (
	RoleEmployee   = "employee"
	RoleSupervisor = "supervisor"
	RoleHR         = "hr"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	SupervisorID string    `json:"supervisorId,omitempty"`
	Entitlements []string  `json:"entitlements,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u User) Entitled(typeID string) bool {
	for _, code := range u.Entitlements {
		if code == typeID {
			return true
		}
	}
	return false
}
