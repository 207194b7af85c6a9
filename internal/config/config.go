package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	Env       string
	MailStore string // "imap", "gmail" or "memory"

	// IMAP backend settings
	IMAPHost     string
	IMAPPort     string
	IMAPUsername string
	IMAPPassword string
	IMAPTLS      bool

	// Gmail backend settings
	GmailAccessToken string

	SharedMailboxEmail      string
	PersonalRetentionMonths int
	SharedRetentionMonths   int
	MaxSearchResults        int
	MaxRecipientsDisplay    int
	MaxBodyChars            int
	IncludeSentItems        bool
	CleanHTMLContent        bool
	IncludeTimestamps       bool
	MaxConnectionRetries    int
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:      GetEnv("PORT", "8080"),
		Env:       GetEnv("ENV", "development"),
		MailStore: GetEnv("MAIL_STORE", "memory"),

		IMAPHost:     GetEnv("IMAP_HOST", ""),
		IMAPPort:     GetEnv("IMAP_PORT", "993"),
		IMAPUsername: GetEnv("IMAP_USERNAME", ""),
		IMAPPassword: GetEnv("IMAP_PASSWORD", ""),
		IMAPTLS:      GetEnvBool("IMAP_TLS", true),

		GmailAccessToken: GetEnv("GMAIL_ACCESS_TOKEN", ""),

		SharedMailboxEmail:      GetEnv("SHARED_MAILBOX_EMAIL", ""),
		PersonalRetentionMonths: GetEnvInt("PERSONAL_RETENTION_MONTHS", 6),
		SharedRetentionMonths:   GetEnvInt("SHARED_RETENTION_MONTHS", 12),
		MaxSearchResults:        GetEnvInt("MAX_SEARCH_RESULTS", 500),
		MaxRecipientsDisplay:    GetEnvInt("MAX_RECIPIENTS_DISPLAY", 50),
		MaxBodyChars:            GetEnvInt("MAX_BODY_CHARS", 0),
		IncludeSentItems:        GetEnvBool("INCLUDE_SENT_ITEMS", true),
		CleanHTMLContent:        GetEnvBool("CLEAN_HTML_CONTENT", true),
		IncludeTimestamps:       GetEnvBool("INCLUDE_TIMESTAMPS", true),
		MaxConnectionRetries:    GetEnvInt("MAX_CONNECTION_RETRIES", 3),
	}, nil
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func GetEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (c *Config) Validate() error {
	switch c.MailStore {
	case "memory":
	case "imap":
		if c.IMAPHost == "" {
			return fmt.Errorf("IMAP_HOST is required when MAIL_STORE=imap")
		}
		if c.IMAPUsername == "" {
			return fmt.Errorf("IMAP_USERNAME is required when MAIL_STORE=imap")
		}
	case "gmail":
		if c.GmailAccessToken == "" {
			return fmt.Errorf("GMAIL_ACCESS_TOKEN is required when MAIL_STORE=gmail")
		}
	default:
		return fmt.Errorf("unsupported MAIL_STORE: %s", c.MailStore)
	}
	if c.MaxConnectionRetries < 1 {
		return fmt.Errorf("MAX_CONNECTION_RETRIES must be at least 1")
	}
	if c.MaxRecipientsDisplay < 1 {
		return fmt.Errorf("MAX_RECIPIENTS_DISPLAY must be at least 1")
	}
	return nil
}

// SharedMailboxConfigured reports whether a real shared mailbox address is
// set. Placeholder values shipped in example configs do not count.
func (c *Config) SharedMailboxConfigured() bool {
	addr := strings.TrimSpace(c.SharedMailboxEmail)
	if addr == "" {
		return false
	}
	return !strings.Contains(addr, "example.com") && !strings.Contains(addr, "your-shared")
}
