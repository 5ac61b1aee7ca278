package domain

import "time"

// SpotStatus tracks the lifecycle of a lost-pet listing.
type SpotStatus string

const (
	SpotStatusOpen  SpotStatus = "open"
	SpotStatusFound SpotStatus = "found"
)

// Spot is a lost-pet listing.
type Spot struct {
	ID        string
	OwnerID   string
	Title     string
	PetName   string
	Status    SpotStatus
	CreatedAt time.Time
}

// Sighting is a report filed against a spot by another user.
type Sighting struct {
	ID         string
	SpotID     string
	ReporterID string
	Location   string
	Note       string
	CreatedAt  time.Time
}
