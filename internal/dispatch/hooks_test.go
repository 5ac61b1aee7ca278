package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ckaraca/spotfound/internal/domain"
)

type fakeResolver struct {
	users map[string][2]string // id -> {email, name}
	err   error
}

func (r *fakeResolver) ResolveUser(_ context.Context, userID string) (string, string, error) {
	if r.err != nil {
		return "", "", r.err
	}
	u, ok := r.users[userID]
	if !ok {
		return "", "", errors.New("user not found")
	}
	return u[0], u[1], nil
}

func newTestHooks(t *testing.T, resolver RecipientResolver) (*Hooks, *fakeRepo) {
	t.Helper()

	queue, repo := newTestQueue(t)
	return NewHooks(queue, resolver, "https://spotfound.example", "ops@spotfound.example"), repo
}

func TestHooks_UserRegistered(t *testing.T) {
	resolver := &fakeResolver{users: map[string][2]string{
		"user-1": {"ayse@example.com", "Ayşe"},
	}}
	hooks, repo := newTestHooks(t, resolver)

	err := hooks.UserRegistered(context.Background(), "user-1")
	require.NoError(t, err)

	stats, err := repo.QueueStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)

	item := repo.get("item-1")
	assert.Equal(t, KindWelcome, item.Kind)
	assert.Equal(t, "ayse@example.com", item.Recipient)
}

func TestHooks_LookupFailureSkipsNotification(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("db down")}
	hooks, repo := newTestHooks(t, resolver)

	// The domain action already happened; the hook must not surface the
	// lookup failure.
	err := hooks.UserRegistered(context.Background(), "user-1")
	require.NoError(t, err)

	stats, err := repo.QueueStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
}

func TestHooks_SightingReported(t *testing.T) {
	resolver := &fakeResolver{users: map[string][2]string{
		"owner-1": {"owner@example.com", "Mert"},
	}}
	hooks, repo := newTestHooks(t, resolver)

	spot := &domain.Spot{ID: "spot-1", OwnerID: "owner-1", Title: "Boncuk, grey tabby"}
	sighting := &domain.Sighting{SpotID: "spot-1", ReporterID: "stranger-9", Location: "Kadıköy"}

	err := hooks.SightingReported(context.Background(), spot, sighting)
	require.NoError(t, err)

	item := repo.get("item-1")
	assert.Equal(t, KindSpotSighting, item.Kind)
	assert.Equal(t, "owner@example.com", item.Recipient)
	// Reporter could not be resolved; the generic label is used instead.
	assert.Contains(t, string(item.Payload), "A Spotfound member")
}

func TestHooks_SpotCreatedBuildsURL(t *testing.T) {
	resolver := &fakeResolver{users: map[string][2]string{
		"owner-1": {"owner@example.com", "Mert"},
	}}
	hooks, repo := newTestHooks(t, resolver)

	err := hooks.SpotCreated(context.Background(), &domain.Spot{
		ID:      "spot-1",
		OwnerID: "owner-1",
		Title:   "Boncuk",
	})
	require.NoError(t, err)

	item := repo.get("item-1")
	assert.Contains(t, string(item.Payload), "https://spotfound.example/spots/spot-1")
}

func TestHooks_AdminAlert(t *testing.T) {
	hooks, repo := newTestHooks(t, &fakeResolver{})

	err := hooks.AdminAlert(context.Background(), "queue backlog", "2000 items pending")
	require.NoError(t, err)

	item := repo.get("item-1")
	assert.Equal(t, KindAdminAlert, item.Kind)
	assert.Equal(t, "ops@spotfound.example", item.Recipient)
}

func TestHooks_AdminAlertWithoutAddress(t *testing.T) {
	queue, repo := newTestQueue(t)
	hooks := NewHooks(queue, &fakeResolver{}, "", "")

	err := hooks.AdminAlert(context.Background(), "queue backlog", "detail")
	require.NoError(t, err)

	stats, err := repo.QueueStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
}
