// Package config loads relay and client settings from the environment. A
// .env file in the working directory is read first when present; variables
// already set in the environment win.
package config

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// Config is the relay server configuration.
type Config struct {
	ServiceName string `env:"CHAT_SERVICE_NAME,default=chatrelay" validate:"required"`

	Addr       string `env:"CHAT_ADDR,default=:12345" validate:"required,hostname_port"`
	WSAddr     string `env:"CHAT_WS_ADDR" validate:"omitempty,hostname_port"`
	SSHAddr    string `env:"CHAT_SSH_ADDR" validate:"omitempty,hostname_port"`
	SSHHostKey string `env:"CHAT_SSH_HOST_KEY,default=configs/ssh_host_ed25519_key" validate:"required_with=SSHAddr"`

	OutboundQueueSize int           `env:"CHAT_OUTBOUND_QUEUE_SIZE,default=256" validate:"min=16"`
	MaxLineBytes      int           `env:"CHAT_MAX_LINE_BYTES,default=65536" validate:"min=256"`
	FlushTimeout      time.Duration `env:"CHAT_FLUSH_TIMEOUT,default=2s" validate:"gt=0"`

	ReservedNames string `env:"CHAT_RESERVED_NAMES"`
	CensoredWords string `env:"CHAT_CENSORED_WORDS"`
	CensorChar    string `env:"CHAT_CENSOR_CHAR,default=*" validate:"len=1"`

	RosterTTL time.Duration `env:"CHAT_ROSTER_TTL,default=1s" validate:"gt=0"`
	RedisAddr string        `env:"CHAT_REDIS_ADDR" validate:"omitempty,hostname_port"`
	RedisKey  string        `env:"CHAT_REDIS_KEY,default=chatrelay:roster" validate:"required_with=RedisAddr"`

	LogLevel  string `env:"CHAT_LOG_LEVEL,default=info" validate:"oneof=debug info warn warning error"`
	LogDir    string `env:"CHAT_LOG_DIR"`
	LogPretty bool   `env:"CHAT_LOG_PRETTY,default=false"`
}

// ClientConfig is the console client configuration.
type ClientConfig struct {
	ServerAddr string `env:"CHAT_SERVER_ADDR,default=localhost:12345" validate:"required,hostname_port"`
	Color      bool   `env:"CHAT_COLOR,default=true"`
}

var validate = validator.New()

// Load reads the relay configuration.
//
// Returns:
//   - The validated Config
//   - An error naming the offending variable when a value cannot be parsed or
//     is out of range
func Load() (*Config, error) {
	var cfg Config
	if err := load(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadClient reads the console client configuration.
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := load(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func load(target any) error {
	// A missing .env file is the normal case outside development.
	_ = godotenv.Load()

	if _, err := env.UnmarshalFromEnviron(target); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

// ReservedNameList returns CHAT_RESERVED_NAMES split on commas, trimmed, with
// blanks removed. Names stay case-sensitive.
func (c *Config) ReservedNameList() []string {
	return splitList(c.ReservedNames)
}

// CensoredWordList returns CHAT_CENSORED_WORDS split like ReservedNameList.
func (c *Config) CensoredWordList() []string {
	return splitList(c.CensoredWords)
}

// MaskRune returns the single rune of CHAT_CENSOR_CHAR.
func (c *Config) MaskRune() rune {
	r, _ := utf8.DecodeRuneInString(c.CensorChar)
	return r
}

func splitList(raw string) []string {
	return lo.Uniq(lo.Compact(lo.Map(strings.Split(raw, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})))
}
