package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "HUDDLE"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`
	// CORSOrigins enables CORS for a web client served from elsewhere.
	CORSOrigins []string `mapstructure:"cors_origins"`

	Chat   ChatConfig   `mapstructure:"chat"`
	Limits LimitsConfig `mapstructure:"limits"`
	RTC    RTCConfig    `mapstructure:"rtc"`
}

type ChatConfig struct {
	// MaxMessages bounds the history kept per room; 0 keeps everything.
	MaxMessages int `mapstructure:"max_messages"`
	MaxNameLen  int `mapstructure:"max_name_len"`
}

type LimitsConfig struct {
	CreateRoomBurst  int           `mapstructure:"create_room_burst"`
	CreateRoomWindow time.Duration `mapstructure:"create_room_window"`
}

type RTCConfig struct {
	UDPPortMin  uint16   `mapstructure:"udp_port_min"`
	UDPPortMax  uint16   `mapstructure:"udp_port_max"`
	AnnouncedIP string   `mapstructure:"announced_ip"`
	STUNURLs    []string `mapstructure:"stun_urls"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origins", []string{})

	v.SetDefault("chat.max_messages", 500)
	v.SetDefault("chat.max_name_len", 64)

	v.SetDefault("limits.create_room_burst", 5)
	v.SetDefault("limits.create_room_window", "1m")

	v.SetDefault("rtc.udp_port_min", 40000)
	v.SetDefault("rtc.udp_port_max", 40100)
	v.SetDefault("rtc.announced_ip", "")
	v.SetDefault("rtc.stun_urls", []string{"stun:stun.l.google.com:19302"})
}

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults. HUDDLE_*
// variables, also taken from an optional .env, override both.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.RTC.UDPPortMax < cfg.RTC.UDPPortMin {
		return nil, fmt.Errorf("rtc.udp_port_max %d is below rtc.udp_port_min %d", cfg.RTC.UDPPortMax, cfg.RTC.UDPPortMin)
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Msg("config ready")
	return &cfg, nil
}
