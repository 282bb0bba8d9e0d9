package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-pairing/internal/origin"
)

const (
	envVarListenAddr      = "AERO_PAIRING_LISTEN_ADDR"
	envVarPort            = "PORT"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarClientURL       = "CLIENT_URL"
	envVarLogFormat       = "AERO_PAIRING_LOG_FORMAT"
	envVarLogLevel        = "AERO_PAIRING_LOG_LEVEL"
	envVarShutdownTimeout = "AERO_PAIRING_SHUTDOWN_TIMEOUT"
	envVarMode            = "AERO_PAIRING_MODE"

	// Matchmaking knobs.
	envVarMaxParticipants      = "MAX_PARTICIPANTS"
	envVarDefaultDisplayName   = "DEFAULT_DISPLAY_NAME"
	envVarMaxDisplayNameLength = "MAX_DISPLAY_NAME_LENGTH"
	envVarMaxChatMessageLength = "MAX_CHAT_MESSAGE_LENGTH"

	// WebSocket signaling hardening.
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarSignalingWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarSignalingWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	envVarSignalingSendQueueBytes       = "SIGNALING_SEND_QUEUE_BYTES"
)

const (
	DefaultListenAddr = "127.0.0.1:3000"
	DefaultShutdown   = 15 * time.Second
	DefaultMode       = ModeDev

	DefaultMaxParticipants      = 0
	DefaultDisplayName          = "Anonymous"
	DefaultMaxDisplayNameLength = 64
	DefaultMaxChatMessageLength = 2000

	DefaultMaxSignalingMessageBytes      = int64(64 * 1024)
	DefaultMaxSignalingMessagesPerSecond = 50
	DefaultSignalingWSIdleTimeout        = 60 * time.Second
	DefaultSignalingWSPingInterval       = 20 * time.Second
	DefaultSignalingSendQueueBytes       = 1 << 20 // 1MiB
)

// Exported env var names for callers that print configuration hints.
const (
	EnvAllowedOrigins  = envVarAllowedOrigins
	EnvMaxParticipants = envVarMaxParticipants
	EnvICEServersJSON  = envICEServersJSON
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr string
	// AllowedOrigins holds normalized browser origins (or "*"). Empty means
	// same-host only.
	AllowedOrigins  []string
	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	// MaxParticipants caps concurrent connections (0 = unlimited).
	MaxParticipants      int
	DefaultDisplayName   string
	MaxDisplayNameLength int
	MaxChatMessageLength int

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int
	SignalingWSIdleTimeout        time.Duration
	SignalingWSPingInterval       time.Duration
	SignalingSendQueueBytes       int

	// ICEServers is handed to browsers via GET /ice.
	ICEServers []webrtc.ICEServer
}

// Load reads configuration from a .env file (if present), the process
// environment and command-line flags, in increasing precedence.
func Load(args []string) (Config, error) {
	// Variables already in the environment win over .env entries.
	_ = godotenv.Load()
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := envLogFormat
	if !envLogFormatSet {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	envLogLevelSet := envLogLevelOK && envLogLevel != ""
	logLevelDefault := envLogLevel
	if !envLogLevelSet {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	listenAddr := DefaultListenAddr
	if port := envOrDefault(lookup, envVarPort, ""); port != "" {
		listenAddr = ":" + strings.TrimPrefix(strings.TrimSpace(port), ":")
	}
	listenAddr = envOrDefault(lookup, envVarListenAddr, listenAddr)

	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, envOrDefault(lookup, envVarClientURL, ""))
	displayName := envOrDefault(lookup, envVarDefaultDisplayName, DefaultDisplayName)

	ice := ICESource{
		JSON:           envOrDefault(lookup, envICEServersJSON, ""),
		STUNURLs:       envOrDefault(lookup, envStunURLs, ""),
		TURNURLs:       envOrDefault(lookup, envTurnURLs, ""),
		TURNUsername:   envOrDefault(lookup, envTurnUsername, ""),
		TURNCredential: envOrDefault(lookup, envTurnCredential, ""),
	}

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}
	idleTimeout, err := envDurationOrDefault(lookup, envVarSignalingWSIdleTimeout, DefaultSignalingWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	pingInterval, err := envDurationOrDefault(lookup, envVarSignalingWSPingInterval, DefaultSignalingWSPingInterval)
	if err != nil {
		return Config{}, err
	}

	maxParticipants, err := envIntOrDefault(lookup, envVarMaxParticipants, DefaultMaxParticipants)
	if err != nil {
		return Config{}, err
	}
	maxDisplayNameLength, err := envIntOrDefault(lookup, envVarMaxDisplayNameLength, DefaultMaxDisplayNameLength)
	if err != nil {
		return Config{}, err
	}
	maxChatMessageLength, err := envIntOrDefault(lookup, envVarMaxChatMessageLength, DefaultMaxChatMessageLength)
	if err != nil {
		return Config{}, err
	}
	maxMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	sendQueueBytes, err := envIntOrDefault(lookup, envVarSignalingSendQueueBytes, DefaultSignalingSendQueueBytes)
	if err != nil {
		return Config{}, err
	}
	maxMessageBytes := DefaultMaxSignalingMessageBytes
	if raw, ok := lookup(envVarMaxSignalingMessageBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarMaxSignalingMessageBytes, raw, err)
		}
		maxMessageBytes = n
	}

	fs := flag.NewFlagSet("aero-webrtc-pairing", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		modeStr      string
		logFormatStr string
		logLevelStr  string
	)

	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address (host:port; env "+envVarListenAddr+" or "+envVarPort+")")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated list of allowed browser origins (env "+envVarAllowedOrigins+" or "+envVarClientURL+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (e.g. 15s)")

	fs.IntVar(&maxParticipants, "max-participants", maxParticipants, "Maximum concurrent participants (0 = unlimited; env "+envVarMaxParticipants+")")
	fs.StringVar(&displayName, "default-display-name", displayName, "Display name for participants that do not send one (env "+envVarDefaultDisplayName+")")
	fs.IntVar(&maxDisplayNameLength, "max-display-name-length", maxDisplayNameLength, "Display names are truncated to this many characters (0 = unlimited; env "+envVarMaxDisplayNameLength+")")
	fs.IntVar(&maxChatMessageLength, "max-chat-message-length", maxChatMessageLength, "Reject chat messages longer than this many characters (0 = unlimited; env "+envVarMaxChatMessageLength+")")

	fs.Int64Var(&maxMessageBytes, "max-signaling-message-bytes", maxMessageBytes, "Max inbound WebSocket frame size in bytes (env "+envVarMaxSignalingMessageBytes+")")
	fs.IntVar(&maxMessagesPerSecond, "max-signaling-messages-per-second", maxMessagesPerSecond, "Max inbound WebSocket frames per second per connection (env "+envVarMaxSignalingMessagesPerSecond+")")
	fs.DurationVar(&idleTimeout, "signaling-ws-idle-timeout", idleTimeout, "Close WebSocket connections with no inbound traffic for this long (env "+envVarSignalingWSIdleTimeout+")")
	fs.DurationVar(&pingInterval, "signaling-ws-ping-interval", pingInterval, "Interval between server WebSocket pings (env "+envVarSignalingWSPingInterval+")")
	fs.IntVar(&sendQueueBytes, "signaling-send-queue-bytes", sendQueueBytes, "Max queued outbound bytes per connection before it is closed (env "+envVarSignalingSendQueueBytes+")")

	fs.StringVar(&ice.JSON, "ice-servers-json", ice.JSON, "ICE server JSON config ("+envICEServersJSON+")")
	fs.StringVar(&ice.STUNURLs, "stun-urls", ice.STUNURLs, "comma-separated STUN URLs ("+envStunURLs+")")
	fs.StringVar(&ice.TURNURLs, "turn-urls", ice.TURNURLs, "comma-separated TURN URLs ("+envTurnURLs+")")
	fs.StringVar(&ice.TURNUsername, "turn-username", ice.TURNUsername, "TURN username ("+envTurnUsername+")")
	fs.StringVar(&ice.TURNCredential, "turn-credential", ice.TURNCredential, "TURN credential ("+envTurnCredential+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	// When the mode is set via flag, re-derive log defaults unless the user
	// explicitly set them.
	logFormatFlagSet := false
	logLevelFlagSet := false
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log-format":
			logFormatFlagSet = true
		case "log-level":
			logLevelFlagSet = true
		}
	})
	if !logFormatFlagSet && !envLogFormatSet {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !logLevelFlagSet && !envLogLevelSet {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	logLevel, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	allowedOrigins, err := origin.ParseList(allowedOriginsStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", envVarAllowedOrigins, err)
	}

	iceServers, err := ice.Servers()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:      strings.TrimSpace(listenAddr),
		AllowedOrigins:  allowedOrigins,
		Mode:            mode,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		ShutdownTimeout: shutdownTimeout,

		MaxParticipants:      maxParticipants,
		DefaultDisplayName:   strings.TrimSpace(displayName),
		MaxDisplayNameLength: maxDisplayNameLength,
		MaxChatMessageLength: maxChatMessageLength,

		MaxSignalingMessageBytes:      maxMessageBytes,
		MaxSignalingMessagesPerSecond: maxMessagesPerSecond,
		SignalingWSIdleTimeout:        idleTimeout,
		SignalingWSPingInterval:       pingInterval,
		SignalingSendQueueBytes:       sendQueueBytes,

		ICEServers: iceServers,
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address must not be empty"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0", envVarShutdownTimeout))
	}
	if c.MaxParticipants < 0 {
		errs = append(errs, fmt.Errorf("%s must be >= 0", envVarMaxParticipants))
	}
	if c.DefaultDisplayName == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", envVarDefaultDisplayName))
	}
	if c.MaxDisplayNameLength < 0 {
		errs = append(errs, fmt.Errorf("%s must be >= 0", envVarMaxDisplayNameLength))
	}
	if c.MaxChatMessageLength < 0 {
		errs = append(errs, fmt.Errorf("%s must be >= 0", envVarMaxChatMessageLength))
	}
	if c.MaxSignalingMessageBytes <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0", envVarMaxSignalingMessageBytes))
	}
	if c.MaxSignalingMessagesPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0", envVarMaxSignalingMessagesPerSecond))
	}
	if c.SignalingWSIdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0", envVarSignalingWSIdleTimeout))
	}
	if c.SignalingWSPingInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0", envVarSignalingWSPingInterval))
	} else if c.SignalingWSPingInterval >= c.SignalingWSIdleTimeout {
		errs = append(errs, fmt.Errorf("%s (%s) must be shorter than %s (%s)",
			envVarSignalingWSPingInterval, c.SignalingWSPingInterval,
			envVarSignalingWSIdleTimeout, c.SignalingWSIdleTimeout))
	}
	if int64(c.SignalingSendQueueBytes) < c.MaxSignalingMessageBytes {
		errs = append(errs, fmt.Errorf("%s must be >= %s", envVarSignalingSendQueueBytes, envVarMaxSignalingMessageBytes))
	}
	return errors.Join(errs...)
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}
