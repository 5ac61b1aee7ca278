// Package domain holds records shared across modules.
package domain

import "time"

// AccountType distinguishes personal users from business (shop) accounts.
type AccountType string

const (
	AccountTypePersonal AccountType = "personal"
	AccountTypeBusiness AccountType = "business"
)

// User is a registered account.
type User struct {
	ID          string
	Email       string
	DisplayName string
	Type        AccountType
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Shop is the business profile attached to a business account.
type Shop struct {
	ID        string
	OwnerID   string
	Name      string
	CreatedAt time.Time
}
