package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Log        LogConfig        `koanf:"log"`
	Auth       AuthConfig       `koanf:"auth"`
	Navigation NavigationConfig `koanf:"navigation"`
	Audit      AuditConfig      `koanf:"audit"`
}

type AuthConfig struct {
	DevMode bool `koanf:"devmode"`
	// DevRole and DevMillID shape the identity behind "Bearer dev".
	DevRole   string       `koanf:"devrole"`
	DevMillID string       `koanf:"devmillid"`
	JWT       JWTConfig    `koanf:"jwt"`
	Cookie    CookieConfig `koanf:"cookie"`
}

type JWTConfig struct {
	SigningKey         string `koanf:"signingkey"`
	Issuer             string `koanf:"issuer"`
	ExpiryHours        int    `koanf:"expiryhours"`
	RefreshExpiryHours int    `koanf:"refreshexpiryhours"`
}

// CookieConfig controls the browser session cookie used for screen navigation.
type CookieConfig struct {
	Name   string `koanf:"name"`
	Secure bool   `koanf:"secure"`
}

type ServerConfig struct {
	Host        string   `koanf:"host"`
	Port        int      `koanf:"port"`
	CORSOrigins []string `koanf:"corsorigins"`
}

type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MigrationsPath string `koanf:"migrationspath"`
	MaxConns       int    `koanf:"maxconns"`
}

type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"maxsizemb"`
	MaxBackups int    `koanf:"maxbackups"`
	MaxAgeDays int    `koanf:"maxagedays"`
}

// NavigationConfig holds the fixed destinations the route guard redirects to.
type NavigationConfig struct {
	SignInPath    string `koanf:"signinpath"`
	ForbiddenPath string `koanf:"forbiddenpath"`
}

type AuditConfig struct {
	BufferSize        int    `koanf:"buffersize"`
	BatchSize         int    `koanf:"batchsize"`
	FlushInterval     int    `koanf:"flushintervalms"`
	RetentionDays     int    `koanf:"retentiondays"`
	RetentionSchedule string `koanf:"retentionschedule"`
}

func Load(configPaths ...string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	_ = k.Load(confmap.Provider(map[string]any{
		"server.port":                 8080,
		"server.host":                 "0.0.0.0",
		"database.maxconns":           25,
		"database.migrationspath":     "migrations",
		"log.level":                   "info",
		"log.format":                  "json",
		"log.maxsizemb":               100,
		"log.maxbackups":              5,
		"log.maxagedays":              28,
		"auth.devmode":                false,
		"auth.devrole":                "super-admin",
		"auth.jwt.issuer":             "millerp",
		"auth.jwt.expiryhours":        12,
		"auth.jwt.refreshexpiryhours": 168,
		"auth.cookie.name":            "millerp_session",
		"auth.cookie.secure":          true,
		"navigation.signinpath":       "/sign-in",
		"navigation.forbiddenpath":    "/403",
		"audit.buffersize":            4096,
		"audit.batchsize":             100,
		"audit.flushintervalms":       500,
		"audit.retentiondays":         180,
		"audit.retentionschedule":     "@daily",
	}, "."), nil)

	// YAML file (optional)
	for _, path := range configPaths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			continue
		}
	}

	// MILLERP_SERVER_PORT -> server.port. Keys carry no underscores, so every
	// "_" in a variable name is a path separator.
	_ = k.Load(env.Provider("MILLERP_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "MILLERP_")),
			"_", ".",
		)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
