package config

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Pranav2456/Rutzo/internal/types"
)

// EnvPrefix namespaces environment overrides, e.g. DUEL_NODE.
const EnvPrefix = "DUEL"

// Keys shared by flags, env and config file.
const (
	KeyConfig            = "config"
	KeyNode              = "node"
	KeyHome              = "home"
	KeyKeyFile           = "key-file"
	KeyPollInterval      = "poll-interval"
	KeyDiscoveryAttempts = "discovery-attempts"
	KeyMode              = "mode"
	KeyVerifyOnAck       = "verify-on-ack"
	KeyLogLevel          = "log-level"
	KeyDevnet            = "devnet"
)

const (
	DefaultNode              = "tcp://127.0.0.1:26657"
	DefaultHome              = ".duel"
	DefaultPollInterval      = 2 * time.Second
	DefaultDiscoveryAttempts = 10
	DefaultLogLevel          = "info"
)

type Config struct {
	Node              string
	Home              string
	KeyFile           string
	PollInterval      time.Duration
	DiscoveryAttempts int
	Mode              types.OpponentMode
	VerifyOnAck       bool
	LogLevel          zerolog.Level
	Devnet            bool
}

// New returns a viper instance with defaults and DUEL_* env bindings.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyNode, DefaultNode)
	v.SetDefault(KeyHome, DefaultHome)
	v.SetDefault(KeyKeyFile, "")
	v.SetDefault(KeyPollInterval, DefaultPollInterval)
	v.SetDefault(KeyDiscoveryAttempts, DefaultDiscoveryAttempts)
	v.SetDefault(KeyMode, string(types.OpponentBot))
	v.SetDefault(KeyVerifyOnAck, true)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyDevnet, false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// AddFlags registers the persistent client flags.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(KeyConfig, "", "config file (toml, yaml or json)")
	fs.String(KeyNode, DefaultNode, "CometBFT RPC endpoint of the duel authority")
	fs.String(KeyHome, DefaultHome, "client home directory")
	fs.String(KeyKeyFile, "", "player key file (default <home>/key.json)")
	fs.Duration(KeyPollInterval, DefaultPollInterval, "match poll interval")
	fs.Int(KeyDiscoveryAttempts, DefaultDiscoveryAttempts, "match discovery attempts after joining")
	fs.String(KeyMode, string(types.OpponentBot), "opponent mode (bot|human)")
	fs.Bool(KeyVerifyOnAck, true, "re-read the match state before settling a finished match")
	fs.String(KeyLogLevel, DefaultLogLevel, "log level (trace|debug|info|warn|error)")
	fs.Bool(KeyDevnet, false, "run against an in-process devnet authority under <home>/devnet")
}

// Load resolves the configuration; flags bound to v take precedence over env,
// which takes precedence over the config file.
func Load(v *viper.Viper, fs *pflag.FlagSet) (Config, error) {
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	mode, err := types.ParseOpponentMode(v.GetString(KeyMode))
	if err != nil {
		return Config{}, errorsmod.Wrap(types.ErrInvalidRequest, err.Error())
	}
	lvl, err := zerolog.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return Config{}, errorsmod.Wrapf(types.ErrInvalidRequest, "log level: %v", err)
	}
	cfg := Config{
		Node:              v.GetString(KeyNode),
		Home:              v.GetString(KeyHome),
		KeyFile:           v.GetString(KeyKeyFile),
		PollInterval:      v.GetDuration(KeyPollInterval),
		DiscoveryAttempts: v.GetInt(KeyDiscoveryAttempts),
		Mode:              mode,
		VerifyOnAck:       v.GetBool(KeyVerifyOnAck),
		LogLevel:          lvl,
		Devnet:            v.GetBool(KeyDevnet),
	}
	if cfg.KeyFile == "" {
		cfg.KeyFile = filepath.Join(cfg.Home, "key.json")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return errorsmod.Wrapf(types.ErrInvalidRequest, "poll interval must be positive, got %s", c.PollInterval)
	}
	if c.DiscoveryAttempts <= 0 {
		return errorsmod.Wrapf(types.ErrInvalidRequest, "discovery attempts must be positive, got %d", c.DiscoveryAttempts)
	}
	if !c.Devnet && c.Node == "" {
		return errorsmod.Wrap(types.ErrInvalidRequest, "node endpoint is required")
	}
	return nil
}

// DevnetHome is where the in-process authority keeps its state.
func (c Config) DevnetHome() string { return filepath.Join(c.Home, "devnet") }

// Logger builds the process logger at the configured level.
func (c Config) Logger(w io.Writer) log.Logger {
	return log.NewLogger(w, log.LevelOption(c.LogLevel)).With("module", types.ModuleName)
}
