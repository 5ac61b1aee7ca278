package smtp

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ckaraca/spotfound/internal/dispatch"
)

func TestNewSender_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "disabled needs nothing",
			config:  Config{Enabled: false},
			wantErr: false,
		},
		{
			name:    "enabled without host",
			config:  Config{Enabled: true, FromAddress: "noreply@spotfound.example"},
			wantErr: true,
		},
		{
			name:    "enabled without from address",
			config:  Config{Enabled: true, Host: "smtp.example.com"},
			wantErr: true,
		},
		{
			name: "enabled with full config",
			config: Config{
				Enabled:     true,
				Host:        "smtp.example.com",
				FromAddress: "Spotfound <noreply@spotfound.example>",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSender(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSender_DisabledModeReportsSuccess(t *testing.T) {
	sender, err := NewSender(Config{Enabled: false})
	require.NoError(t, err)

	providerID, err := sender.Send(context.Background(), dispatch.EmailMessage{
		To:      "ayse@example.com",
		Subject: "Welcome",
		HTML:    "<p>Hi</p>",
		Text:    "Hi",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(providerID, "<"))
	assert.Contains(t, providerID, "@spotfound>")
}

func TestSender_RejectsBadRecipients(t *testing.T) {
	sender, err := NewSender(Config{Enabled: false})
	require.NoError(t, err)

	for _, to := range []string{"", "no-at-sign"} {
		_, err := sender.Send(context.Background(), dispatch.EmailMessage{To: to})
		require.Error(t, err)

		var deliveryErr *dispatch.DeliveryError
		require.ErrorAs(t, err, &deliveryErr)
		assert.False(t, deliveryErr.IsRetryable())
	}
}

func TestBuildMessage(t *testing.T) {
	sender, err := NewSender(Config{
		Enabled:     false,
		FromAddress: "Spotfound <noreply@spotfound.example>",
	})
	require.NoError(t, err)

	raw := string(sender.buildMessage("<id-1@spotfound>", dispatch.EmailMessage{
		To:      "ayse@example.com",
		Subject: "Hoş geldin",
		HTML:    "<p>Merhaba</p>",
		Text:    "Merhaba",
	}))

	assert.Contains(t, raw, "From: Spotfound <noreply@spotfound.example>\r\n")
	assert.Contains(t, raw, "To: ayse@example.com\r\n")
	assert.Contains(t, raw, "Message-ID: <id-1@spotfound>\r\n")
	assert.Contains(t, raw, "multipart/alternative")
	assert.Contains(t, raw, "text/plain")
	assert.Contains(t, raw, "text/html")
	// Non-ASCII subject must be encoded.
	assert.NotContains(t, raw, "Subject: Hoş geldin\r\n")
}

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		address  string
		expected string
	}{
		{"noreply@spotfound.example", "noreply@spotfound.example"},
		{"Spotfound <noreply@spotfound.example>", "noreply@spotfound.example"},
		{"Broken <noreply@spotfound.example", "Broken <noreply@spotfound.example"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, extractEmail(tt.address))
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"connection refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"smtp 421", errors.New("421 service not available"), true},
		{"smtp 450", errors.New("450 mailbox unavailable"), true},
		{"smtp 550 rejected", errors.New("550 no such user"), false},
		{"mailbox full", errors.New("552 mailbox full"), true},
		{"generic", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isTransient(tt.err))
		})
	}
}
