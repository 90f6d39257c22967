package user

import (
	"errors"
	"time"
)

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleWorker Role = "worker"
	RoleAdmin  Role = "admin"
)

// check to see if the role is a known constant

func (r Role) IsValid() bool {
	switch r {
	case RoleBuyer, RoleWorker, RoleAdmin:
		return true
	default:
		return false
	}
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	Coin         int64     `json:"coin"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Stats is the aggregate shown on the admin dashboard.
type Stats struct {
	Workers    int   `json:"workers"`
	Buyers     int   `json:"buyers"`
	TotalCoins int64 `json:"totalCoins"`
}

var ErrNotFound = errors.New("user not found")

// a debit would take the balance below zero
var ErrInsufficientCoins = errors.New("insufficient coin balance")

// other records still point at the user, so deletion is blocked
var ErrHasActivity = errors.New("user has marketplace activity")

// StartingCoins is the sign-up grant per role.
func StartingCoins(r Role) int64 {
	switch r {
	case RoleBuyer:
		return 50
	case RoleWorker:
		return 10
	default:
		return 0
	}
}
