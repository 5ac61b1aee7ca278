//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ckaraca/spotfound/internal/identity"
)

func TestIdentityService_ResolveUser(t *testing.T) {
	truncateAll(t)
	service := identity.NewService(testDB)

	id := createUser(t, "ayse@example.com", "Ayşe")

	email, name, err := service.ResolveUser(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "ayse@example.com", email)
	assert.Equal(t, "Ayşe", name)
}

func TestIdentityService_ResolveUserNotFound(t *testing.T) {
	truncateAll(t)
	service := identity.NewService(testDB)

	_, _, err := service.ResolveUser(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}
