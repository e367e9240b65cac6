package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env                   string
	DatabaseURL           string
	DatabasePoolSize      int
	DiscordToken          string
	DiscordGuildID        string
	HTTPAddr              string
	PublicBaseURL         string
	ReportTimezone        string
	JWTSecret             string
	RoleElevatedModerator string
	RoleSecondTier        string
	RoleTopAdmins         []string
	AlertUserID           string
	AuditWebhookURL       string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.DatabasePoolSize <= 0 {
		return fmt.Errorf("DB_POOL_SIZE must be positive, got %d", c.DatabasePoolSize)
	}
	if _, err := time.LoadLocation(c.ReportTimezone); err != nil {
		return fmt.Errorf("REPORT_TIMEZONE is invalid: %w", err)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "DISCORD_TOKEN", value: c.DiscordToken},
		{name: "DISCORD_GUILD_ID", value: c.DiscordGuildID},
		{name: "HTTP_ADDR", value: c.HTTPAddr},
		{name: "REPORT_TIMEZONE", value: c.ReportTimezone},
		{name: "JWT_SECRET", value: c.JWTSecret},
		{name: "ROLE_ELEVATED_MODERATOR", value: c.RoleElevatedModerator},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Location is the zone in which session times are bucketed into days and hours.
// Validate guarantees it resolves; UTC is only reached for unvalidated configs.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
