package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"consultbot/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig           `yaml:"app"`
	Telegram     TelegramConfig      `yaml:"telegram"`
	Database     DatabaseConfig      `yaml:"database"`
	Redis        RedisConfig         `yaml:"redis"`
	Backup       BackupConfig        `yaml:"backup"`
	Monitoring   MonitoringConfig    `yaml:"monitoring"`
	Logging      LoggingConfig       `yaml:"logging"`
	API          APIConfig           `yaml:"api"`
	Classifier   ClassifierConfig    `yaml:"classifier"`
	Verification VerificationConfig  `yaml:"verification"`
	Payment      PaymentConfig       `yaml:"payment"`
	Conversation ConversationConfig  `yaml:"conversation"`
	Scheduling   SchedulingConfig    `yaml:"scheduling"`
	NATS         NATSConfig          `yaml:"nats"`
	Calendar     CalendarConfig      `yaml:"calendar"`
	Exports      ExportConfig        `yaml:"exports"`
	Services     []models.Service    `yaml:"services"`
	Consultants  []models.Consultant `yaml:"consultants"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // memory, sqlite, postgres
	Path     string         `yaml:"path"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	DBName         string `yaml:"dbname"`
	SSLMode        string `yaml:"sslmode"`
	MaxConnections int    `yaml:"max_connections"`
	MigrationTable string `yaml:"migration_table"`
}

// ConnString returns DSN when set, otherwise builds one from the discrete fields.
func (p PostgresConfig) ConnString() string {
	if p.DSN != "" {
		return p.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

// APIClientKey is one API client. Empty Permissions allows everything.
type APIClientKey struct {
	Name        string   `yaml:"name"`
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ClassifierConfig struct {
	Provider string        `yaml:"provider"` // keyword, googleai
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

type VerificationConfig struct {
	FixedCode  string        `yaml:"fixed_code"`
	CodeLength int           `yaml:"code_length"`
	TTL        time.Duration `yaml:"ttl"`
	Store      string        `yaml:"store"` // memory, redis
}

type PaymentConfig struct {
	DeclineToken string `yaml:"decline_token"`
	Currency     string `yaml:"currency"`
}

type ConversationConfig struct {
	QuiescenceInterval time.Duration `yaml:"quiescence_interval"`
	QueueSize          int           `yaml:"queue_size"`
	SnapshotStore      string        `yaml:"snapshot_store"` // memory, redis
	SnapshotTTL        time.Duration `yaml:"snapshot_ttl"`
	RateLimitMessages  int           `yaml:"rate_limit_messages"`
	RateLimitWindow    int           `yaml:"rate_limit_window"`
}

type SlotTemplate struct {
	ID   string `yaml:"id"`
	Time string `yaml:"time"`
}

type SchedulingConfig struct {
	Slots          []SlotTemplate     `yaml:"slots"`
	ClosedWeekdays []string           `yaml:"closed_weekdays"`
	Contention     map[string]float64 `yaml:"contention"`
	Seed           int64              `yaml:"seed"`
}

type NATSConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Name          string        `yaml:"name"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	Timeout       time.Duration `yaml:"timeout"`
}

type CalendarConfig struct {
	Enabled         bool          `yaml:"enabled"`
	CredentialsFile string        `yaml:"credentials_file"`
	CalendarID      string        `yaml:"calendar_id"`
	TimeZone        string        `yaml:"time_zone"`
	SlotDuration    time.Duration `yaml:"slot_duration"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE") {
		return errors.New("telegram bot token is required")
	}

	switch c.Database.Driver {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case "postgres":
		if c.Database.Postgres.DSN == "" && c.Database.Postgres.Host == "" {
			return errors.New("postgres dsn or host is required")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Classifier.Provider {
	case "keyword":
	case "googleai":
		if c.Classifier.APIKey == "" {
			return errors.New("classifier api key is required for googleai provider")
		}
	default:
		return fmt.Errorf("unknown classifier provider %q", c.Classifier.Provider)
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats url is required")
	}
	if c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api auth enabled but no api keys configured")
	}
	if c.Calendar.Enabled && (c.Calendar.CredentialsFile == "" || c.Calendar.CalendarID == "") {
		return errors.New("calendar credentials file and calendar id are required")
	}

	if _, err := c.Scheduling.Weekdays(); err != nil {
		return err
	}
	if err := ValidateSlots(c.Scheduling.Slots); err != nil {
		return err
	}

	return ValidateCatalog(c.Services, c.Consultants)
}

func ValidateCatalog(services []models.Service, consultants []models.Consultant) error {
	if len(services) == 0 {
		return errors.New("at least one service is required")
	}

	serviceIDs := make(map[string]bool)
	for _, s := range services {
		if s.ID == "" {
			return fmt.Errorf("service '%s' has empty ID", s.Name)
		}
		if serviceIDs[s.ID] {
			return fmt.Errorf("duplicate service ID found: %s", s.ID)
		}
		if s.Price <= 0 {
			return fmt.Errorf("service '%s' has non-positive price", s.ID)
		}
		serviceIDs[s.ID] = true
	}

	consultantIDs := make(map[string]bool)
	for _, cons := range consultants {
		if cons.ID == "" {
			return fmt.Errorf("consultant '%s' has empty ID", cons.Name)
		}
		if consultantIDs[cons.ID] {
			return fmt.Errorf("duplicate consultant ID found: %s", cons.ID)
		}
		if !serviceIDs[cons.ServiceID] {
			return fmt.Errorf("consultant '%s' references unknown service '%s'", cons.ID, cons.ServiceID)
		}
		consultantIDs[cons.ID] = true
	}
	return nil
}

func ValidateSlots(slots []SlotTemplate) error {
	ids := make(map[string]bool)
	prev := ""
	for _, s := range slots {
		if s.ID == "" {
			return fmt.Errorf("slot at %s has empty ID", s.Time)
		}
		if ids[s.ID] {
			return fmt.Errorf("duplicate slot ID found: %s", s.ID)
		}
		if _, err := time.Parse("15:04", s.Time); err != nil {
			return fmt.Errorf("slot %s has invalid time %q", s.ID, s.Time)
		}
		if prev != "" && s.Time <= prev {
			return fmt.Errorf("slot %s is not in ascending order", s.ID)
		}
		ids[s.ID] = true
		prev = s.Time
	}
	return nil
}

// Weekdays parses the closed weekday names.
func (s SchedulingConfig) Weekdays() ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(s.ClosedWeekdays))
	for _, name := range s.ClosedWeekdays {
		found := false
		for d := time.Sunday; d <= time.Saturday; d++ {
			if strings.EqualFold(strings.TrimSpace(name), d.String()) {
				out = append(out, d)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
	}
	return out, nil
}

func (c *Config) Catalog() models.Catalog {
	return models.Catalog{
		Services:    append([]models.Service(nil), c.Services...),
		Consultants: append([]models.Consultant(nil), c.Consultants...),
	}
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "consultbot"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 5
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 10
	}
	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 7
	}

	if c.Classifier.Provider == "" {
		// без ключа работаем в демо-режиме
		if c.Classifier.APIKey != "" {
			c.Classifier.Provider = "googleai"
		} else {
			c.Classifier.Provider = "keyword"
		}
	}
	if c.Classifier.Model == "" {
		c.Classifier.Model = "gemini-2.5-flash"
	}
	if c.Classifier.Timeout == 0 {
		c.Classifier.Timeout = 15 * time.Second
	}

	if c.Verification.CodeLength == 0 {
		c.Verification.CodeLength = 4
	}
	if c.Verification.TTL == 0 {
		c.Verification.TTL = 5 * time.Minute
	}
	if c.Verification.Store == "" {
		c.Verification.Store = "memory"
	}

	if c.Payment.DeclineToken == "" {
		c.Payment.DeclineToken = "fail"
	}
	if c.Payment.Currency == "" {
		c.Payment.Currency = models.DefaultCurrency
	}

	if c.Conversation.QuiescenceInterval == 0 {
		c.Conversation.QuiescenceInterval = models.DefaultQuiescenceInterval
	}
	if c.Conversation.QueueSize == 0 {
		c.Conversation.QueueSize = models.DefaultQueueSize
	}
	if c.Conversation.SnapshotStore == "" {
		c.Conversation.SnapshotStore = "memory"
	}
	if c.Conversation.SnapshotTTL == 0 {
		c.Conversation.SnapshotTTL = models.DefaultSnapshotTTL
	}
	if c.Conversation.RateLimitMessages == 0 {
		c.Conversation.RateLimitMessages = models.RateLimitMessages
	}
	if c.Conversation.RateLimitWindow == 0 {
		c.Conversation.RateLimitWindow = models.RateLimitWindow
	}

	if len(c.Scheduling.Slots) == 0 {
		c.Scheduling.Slots = DefaultSlots()
	}
	if len(c.Scheduling.ClosedWeekdays) == 0 {
		c.Scheduling.ClosedWeekdays = []string{"saturday", "sunday"}
	}
	if c.Scheduling.Contention == nil {
		c.Scheduling.Contention = map[string]float64{"s2": 0.3, "s4": 0.5}
	}

	if c.NATS.Name == "" {
		c.NATS.Name = c.App.Name
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "consultbot.bookings"
	}
	if c.NATS.Timeout == 0 {
		c.NATS.Timeout = 10 * time.Second
	}
	if c.Calendar.TimeZone == "" {
		c.Calendar.TimeZone = "UTC"
	}
	if c.Calendar.SlotDuration == 0 {
		c.Calendar.SlotDuration = time.Hour
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}

	if len(c.Services) == 0 {
		c.Services = DefaultServices()
	}
	if len(c.Consultants) == 0 {
		c.Consultants = DefaultConsultants()
	}
}
