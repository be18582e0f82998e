package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BTreeMap/DASSPipe/internal/api"
	"github.com/BTreeMap/DASSPipe/internal/lockfile"
	"github.com/BTreeMap/DASSPipe/internal/store"
	"github.com/BTreeMap/DASSPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/DASSPipe/internal/util"
	"github.com/BTreeMap/DASSPipe/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for DASSPipe state data
	DefaultStateDir = "/var/lib/dasspipe"
	// DefaultAppDBFileName is the SQLite file holding sessions, receipts and responses
	DefaultAppDBFileName = "dasspipe.db"
	// DefaultWhatsAppDBFileName is the SQLite file holding the whatsmeow device store
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("DASSPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("DASSPipe exited successfully")
}

func run(args []string) error {
	config := loadEnvironmentConfig()
	initializeLogger(config.Debug)

	flags, err := parseCommandLineFlags(flag.NewFlagSet("DASSPipe", flag.ContinueOnError), args, config)
	if err != nil {
		return err
	}

	lock, err := lockfile.AcquireLock(flags.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	waOpts := buildWhatsAppOptions(flags)
	twOpts := buildTwilioOptions(flags)
	storeOpts := buildStoreOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping DASSPipe with configured modules", "backend", flags.Backend)
	slog.Debug("Final configuration",
		"state_dir", flags.StateDir,
		"app_dsn_set", flags.AppDSN != "",
		"whatsapp_dsn_set", flags.WhatsAppDSN != "",
		"api_addr", flags.APIAddr,
		"reminder_delay", flags.ReminderDelay)
	return api.Run(waOpts, twOpts, storeOpts, apiOpts)
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	AppDSN           string
	WhatsAppDSN      string
	APIAddr          string
	Backend          string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioWebhookURL string
	ReminderDelay    time.Duration
	Debug            bool
}

// Flags holds the final configuration after command line overrides.
type Flags struct {
	Config
	QROutput string
	Numeric  bool
}

// initializeLogger sets up structured logging on stdout.
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:         os.Getenv("DASSPIPE_STATE_DIR"),
		AppDSN:           os.Getenv("DATABASE_URL"),
		WhatsAppDSN:      os.Getenv("WHATSAPP_DB_DSN"),
		APIAddr:          os.Getenv("API_ADDR"),
		Backend:          os.Getenv("MESSAGING_BACKEND"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioWebhookURL: os.Getenv("TWILIO_WEBHOOK_URL"),
		Debug:            util.ParseBoolEnv("DASSPIPE_DEBUG", false),
	}

	if raw := os.Getenv("DASSPIPE_REMINDER_DELAY"); raw != "" {
		delay, err := time.ParseDuration(raw)
		if err != nil {
			slog.Warn("invalid DASSPIPE_REMINDER_DELAY, reminders disabled", "value", raw, "error", err)
		} else {
			config.ReminderDelay = delay
		}
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.Backend == "" {
		config.Backend = api.BackendWhatsApp
	}
	applyStateDirDefaults(&config)

	slog.Debug("environment variables loaded",
		"DASSPIPE_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", os.Getenv("DATABASE_URL") != "",
		"WHATSAPP_DB_DSN_SET", os.Getenv("WHATSAPP_DB_DSN") != "",
		"API_ADDR", config.APIAddr,
		"MESSAGING_BACKEND", config.Backend,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "",
		"TWILIO_WEBHOOK_URL_SET", config.TwilioWebhookURL != "")
	return config
}

// applyStateDirDefaults fills unset database DSNs with SQLite files in the state directory.
func applyStateDirDefaults(config *Config) {
	if config.AppDSN == "" {
		config.AppDSN = filepath.Join(config.StateDir, DefaultAppDBFileName)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
}

// parseCommandLineFlags parses args with environment defaults.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	var flags Flags
	fs.StringVar(&flags.QROutput, "qr-output", "", "path to write login QR code")
	fs.BoolVar(&flags.Numeric, "numeric-code", false, "use numeric login code instead of QR code")
	fs.StringVar(&flags.StateDir, "state-dir", config.StateDir, "state directory for DASSPipe data (overrides $DASSPIPE_STATE_DIR)")
	fs.StringVar(&flags.AppDSN, "db-dsn", "", "application database DSN (overrides $DATABASE_URL)")
	fs.StringVar(&flags.WhatsAppDSN, "whatsapp-db-dsn", "", "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&flags.APIAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&flags.Backend, "backend", config.Backend, "messaging backend: whatsapp, twilio or mock (overrides $MESSAGING_BACKEND)")
	fs.DurationVar(&flags.ReminderDelay, "reminder-delay", config.ReminderDelay, "re-send an unanswered question after this delay, 0 disables (overrides $DASSPIPE_REMINDER_DELAY)")
	fs.BoolVar(&flags.Debug, "debug", config.Debug, "enable debug logging (overrides $DASSPIPE_DEBUG)")
	if err := fs.Parse(args); err != nil {
		return Flags{}, fmt.Errorf("failed to parse flags: %w", err)
	}
	flags.TwilioAccountSID = config.TwilioAccountSID
	flags.TwilioAuthToken = config.TwilioAuthToken
	flags.TwilioFrom = config.TwilioFrom
	flags.TwilioWebhookURL = config.TwilioWebhookURL

	// Explicit DSNs win; otherwise follow the (possibly overridden) state directory.
	if flags.AppDSN == "" && os.Getenv("DATABASE_URL") != "" {
		flags.AppDSN = config.AppDSN
	}
	if flags.WhatsAppDSN == "" && os.Getenv("WHATSAPP_DB_DSN") != "" {
		flags.WhatsAppDSN = config.WhatsAppDSN
	}
	applyStateDirDefaults(&flags.Config)

	if flags.Debug != config.Debug {
		initializeLogger(flags.Debug)
	}
	slog.Debug("flags parsed",
		"qrOutput", flags.QROutput,
		"numeric", flags.Numeric,
		"stateDir", flags.StateDir,
		"apiAddr", flags.APIAddr,
		"backend", flags.Backend)
	return flags, nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if flags.QROutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(flags.QROutput))
	}
	if flags.Numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if flags.WhatsAppDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(flags.WhatsAppDSN))
	}
	return waOpts
}

// buildTwilioOptions constructs Twilio configuration options
func buildTwilioOptions(flags Flags) []twiliowhatsapp.Option {
	var twOpts []twiliowhatsapp.Option
	if flags.TwilioAccountSID != "" {
		twOpts = append(twOpts, twiliowhatsapp.WithAccountSID(flags.TwilioAccountSID))
	}
	if flags.TwilioAuthToken != "" {
		twOpts = append(twOpts, twiliowhatsapp.WithAuthToken(flags.TwilioAuthToken))
	}
	if flags.TwilioFrom != "" {
		twOpts = append(twOpts, twiliowhatsapp.WithFromWhats(flags.TwilioFrom))
	}
	return twOpts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if flags.AppDSN == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return storeOpts
	}
	if store.DetectDSNType(flags.AppDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		storeOpts = append(storeOpts, store.WithPostgresDSN(flags.AppDSN))
	} else {
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", flags.AppDSN)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(flags.AppDSN))
	}
	return storeOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if flags.APIAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.APIAddr))
	}
	if flags.Backend != "" {
		apiOpts = append(apiOpts, api.WithBackend(flags.Backend))
	}
	if flags.ReminderDelay > 0 {
		apiOpts = append(apiOpts, api.WithReminderDelay(flags.ReminderDelay))
	}
	if flags.TwilioWebhookURL != "" && flags.TwilioAuthToken != "" {
		apiOpts = append(apiOpts, api.WithTwilioWebhookValidation(flags.TwilioWebhookURL, flags.TwilioAuthToken))
	}
	return apiOpts
}
