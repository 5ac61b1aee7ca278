package dispatch

import (
	"encoding/json"
	"fmt"
)

// Payloads are stored as JSON in the queue row and parsed back into their
// typed form before rendering. Unknown fields are ignored; missing fields
// render as empty strings, which the templates tolerate.

// WelcomePayload greets a newly registered personal account.
type WelcomePayload struct {
	Name string `json:"name"`
}

// BusinessWelcomePayload greets a newly registered shop.
type BusinessWelcomePayload struct {
	ShopName  string `json:"shop_name"`
	OwnerName string `json:"owner_name"`
}

// SpotCreatedPayload confirms a new lost-pet listing to its owner.
type SpotCreatedPayload struct {
	Name      string `json:"name"`
	SpotTitle string `json:"spot_title"`
	SpotURL   string `json:"spot_url"`
}

// SpotSightingPayload notifies an owner that someone reported a sighting.
type SpotSightingPayload struct {
	OwnerName   string `json:"owner_name"`
	SpotTitle   string `json:"spot_title"`
	SighterName string `json:"sighter_name"`
	Location    string `json:"location"`
	Note        string `json:"note"`
	SpotURL     string `json:"spot_url"`
}

// SpotFoundPayload congratulates an owner on a resolved listing.
type SpotFoundPayload struct {
	OwnerName string `json:"owner_name"`
	SpotTitle string `json:"spot_title"`
	SpotURL   string `json:"spot_url"`
}

// PasswordResetPayload carries the reset link.
type PasswordResetPayload struct {
	Name     string `json:"name"`
	ResetURL string `json:"reset_url"`
	TTL      string `json:"ttl"`
}

// VerifyEmailPayload carries the email verification link.
type VerifyEmailPayload struct {
	Name      string `json:"name"`
	VerifyURL string `json:"verify_url"`
}

// AdminAlertPayload is a free-form operational alert.
type AdminAlertPayload struct {
	Summary string `json:"summary"`
	Detail  string `json:"detail"`
}

// decodePayload parses raw JSON into the typed payload for kind.
func decodePayload(kind Kind, raw []byte) (any, error) {
	var dst any
	switch kind {
	case KindWelcome:
		dst = &WelcomePayload{}
	case KindBusinessWelcome:
		dst = &BusinessWelcomePayload{}
	case KindSpotCreated:
		dst = &SpotCreatedPayload{}
	case KindSpotSighting:
		dst = &SpotSightingPayload{}
	case KindSpotFound:
		dst = &SpotFoundPayload{}
	case KindPasswordReset:
		dst = &PasswordResetPayload{}
	case KindVerifyEmail:
		dst = &VerifyEmailPayload{}
	case KindAdminAlert:
		dst = &AdminAlertPayload{}
	default:
		return nil, fmt.Errorf("decode payload: %w", ErrTemplateNotFound)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return dst, nil
}
