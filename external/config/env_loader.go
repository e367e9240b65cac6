package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/bonfire/internal/config"
	"github.com/joho/godotenv"
)

type envConfig struct {
	Env                   string   `env:"ENV" envDefault:"production"`
	DatabaseURL           string   `env:"DATABASE_URL,required"`
	DatabasePoolSize      int      `env:"DB_POOL_SIZE" envDefault:"10"`
	DiscordToken          string   `env:"DISCORD_TOKEN,required"`
	DiscordGuildID        string   `env:"DISCORD_GUILD_ID,required"`
	HTTPAddr              string   `env:"HTTP_ADDR" envDefault:":8000"`
	PublicBaseURL         string   `env:"PUBLIC_BASE_URL"`
	ReportTimezone        string   `env:"REPORT_TIMEZONE" envDefault:"Asia/Seoul"`
	JWTSecret             string   `env:"JWT_SECRET,required"`
	RoleElevatedModerator string   `env:"ROLE_ELEVATED_MODERATOR,required"`
	RoleSecondTier        string   `env:"ROLE_SECOND_TIER"`
	RoleTopAdmins         []string `env:"ROLE_TOP_ADMINS" envSeparator:","`
	AlertUserID           string   `env:"ALERT_USER_ID"`
	AuditWebhookURL       string   `env:"AUDIT_WEBHOOK_URL"`
}

// Load reads an optional .env file into the process environment and then
// parses the environment into a validated Config.
func Load() (*internalconfig.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn(".env file could not be loaded; continuing with process environment", "error", err)
	}

	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                   raw.Env,
		DatabaseURL:           raw.DatabaseURL,
		DatabasePoolSize:      raw.DatabasePoolSize,
		DiscordToken:          raw.DiscordToken,
		DiscordGuildID:        raw.DiscordGuildID,
		HTTPAddr:              raw.HTTPAddr,
		PublicBaseURL:         raw.PublicBaseURL,
		ReportTimezone:        raw.ReportTimezone,
		JWTSecret:             raw.JWTSecret,
		RoleElevatedModerator: raw.RoleElevatedModerator,
		RoleSecondTier:        raw.RoleSecondTier,
		RoleTopAdmins:         raw.RoleTopAdmins,
		AlertUserID:           raw.AlertUserID,
		AuditWebhookURL:       raw.AuditWebhookURL,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
