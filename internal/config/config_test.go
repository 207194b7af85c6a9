package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.MailStore)
	assert.Equal(t, 6, cfg.PersonalRetentionMonths)
	assert.Equal(t, 12, cfg.SharedRetentionMonths)
	assert.Equal(t, 500, cfg.MaxSearchResults)
	assert.Equal(t, 3, cfg.MaxConnectionRetries)
	assert.True(t, cfg.IncludeSentItems)
	assert.True(t, cfg.CleanHTMLContent)
	assert.True(t, cfg.IncludeTimestamps)
}

func TestGetEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("MAX_SEARCH_RESULTS", "25")
	t.Setenv("INCLUDE_SENT_ITEMS", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 25, cfg.MaxSearchResults)
	assert.False(t, cfg.IncludeSentItems)
}

func TestGetEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("MAX_SEARCH_RESULTS", "not-a-number")
	assert.Equal(t, 500, GetEnvInt("MAX_SEARCH_RESULTS", 500))
}

func TestValidate(t *testing.T) {
	cfg := &Config{MailStore: "memory", MaxConnectionRetries: 3, MaxRecipientsDisplay: 50}
	assert.NoError(t, cfg.Validate())

	cfg.MailStore = "imap"
	assert.Error(t, cfg.Validate())
	cfg.IMAPHost = "mail.corp.internal"
	assert.Error(t, cfg.Validate())
	cfg.IMAPUsername = "svc-mail"
	assert.NoError(t, cfg.Validate())

	cfg.MailStore = "gmail"
	assert.Error(t, cfg.Validate())
	cfg.GmailAccessToken = "token"
	assert.NoError(t, cfg.Validate())

	cfg.MailStore = "carrier-pigeon"
	assert.Error(t, cfg.Validate())

	cfg.MailStore = "memory"
	cfg.MaxConnectionRetries = 0
	assert.Error(t, cfg.Validate())
}

func TestSharedMailboxConfigured(t *testing.T) {
	cases := []struct {
		email string
		want  bool
	}{
		{"", false},
		{"   ", false},
		{"shared-mailbox@example.com", false},
		{"your-shared-mailbox@corp.internal", false},
		{"finance@corp.internal", true},
	}
	for _, c := range cases {
		cfg := &Config{SharedMailboxEmail: c.email}
		assert.Equal(t, c.want, cfg.SharedMailboxConfigured(), "email %q", c.email)
	}
}
