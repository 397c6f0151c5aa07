package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSqlite   = "sqlite"
)

type Config struct {
	HTTPPort         string `mapstructure:"http_port"          validate:"required"`
	HTTPTimeout      int    `mapstructure:"http_timeout"`
	HTTPDrainTimeout int    `mapstructure:"http_drain_timeout"`

	LogLevel    string `mapstructure:"log_level"`
	LogFilePath string `mapstructure:"log_file_path"`

	StoreBackend            string `mapstructure:"store_backend"              validate:"required,oneof=memory postgres sqlite"`
	PostgresHost            string `mapstructure:"postgres_host"              validate:"required_if=StoreBackend postgres"`
	PostgresUsername        string `mapstructure:"postgres_username"          validate:"required_if=StoreBackend postgres"`
	PostgresPassword        string `mapstructure:"postgres_password"`
	PostgresPort            string `mapstructure:"postgres_port"`
	PostgresDatabase        string `mapstructure:"postgres_database"          validate:"required_if=StoreBackend postgres"`
	SqlitePath              string `mapstructure:"sqlite_path"                validate:"required_if=StoreBackend sqlite"`
	DBIntervalCB            uint32 `mapstructure:"db_interval_cb"`
	DBConsecutiveFailuresCB uint32 `mapstructure:"db_consecutive_failures_cb"`

	TwilioAccountSid            string `mapstructure:"twilio_account_sid"`
	TwilioAuthToken             string `mapstructure:"twilio_auth_token"`
	TwilioPhoneNumber           string `mapstructure:"twilio_phone_number"`
	TwilioBaseURL               string `mapstructure:"twilio_base_url"              validate:"required,url"`
	TwilioTimeout               int    `mapstructure:"twilio_timeout"`
	TwilioRetryMaxAttempts      uint   `mapstructure:"twilio_retry_max_attempts"`
	TwilioRetryBackoffMin       int    `mapstructure:"twilio_retry_backoff_min"`
	TwilioRetryBackoffMax       int    `mapstructure:"twilio_retry_backoff_max"`
	TwilioIntervalCB            uint32 `mapstructure:"twilio_interval_cb"`
	TwilioConsecutiveFailuresCB uint32 `mapstructure:"twilio_consecutive_failures_cb"`
	TwilioVoice                 string `mapstructure:"twilio_voice"`
	TwilioLanguage              string `mapstructure:"twilio_language"`
	PublicBaseURL               string `mapstructure:"public_base_url"`

	DispatchSMSDelayMs   int  `mapstructure:"dispatch_sms_delay_ms"`
	DispatchVoiceDelayMs int  `mapstructure:"dispatch_voice_delay_ms"`
	DispatchMaxAttempts  uint `mapstructure:"dispatch_max_attempts"    validate:"min=1"`
	DispatchRetryDelayMs int  `mapstructure:"dispatch_retry_delay_ms"`
	DispatchPoolSize     int  `mapstructure:"dispatch_pool_size"       validate:"min=1"`
	WebhookPoolSize      int  `mapstructure:"webhook_pool_size"        validate:"min=1"`
	DeadLetterPoolSize   int  `mapstructure:"dead_letter_pool_size"    validate:"min=1"`
	DeadLetterMaxRetries int  `mapstructure:"deadletter_max_retries"`
	DeadLetterInterval   int  `mapstructure:"deadletter_interval"`
	DeadLetterRetryDelay int  `mapstructure:"deadletter_retry_delay"`
	DeadLetterBatchLimit int  `mapstructure:"deadletter_batch_limit"`

	OpenAIAPIKey                string `mapstructure:"openai_api_key"`
	OpenAIBaseURL               string `mapstructure:"openai_base_url"`
	OpenAIModel                 string `mapstructure:"openai_model"`
	OpenAITimeout               int    `mapstructure:"openai_timeout"`
	OpenAIRetryMaxAttempts      uint   `mapstructure:"openai_retry_max_attempts"`
	OpenAIRetryMinBackoff       int    `mapstructure:"openai_retry_min_backoff"`
	OpenAIRetryMaxBackoff       int    `mapstructure:"openai_retry_max_backoff"`
	OpenAIIntervalCB            uint32 `mapstructure:"openai_interval_cb"`
	OpenAIConsecutiveFailuresCB uint32 `mapstructure:"openai_consecutive_failures_cb"`

	MinioEndpointURL            string `mapstructure:"minio_endpoint_url"`
	MinioAccessKey              string `mapstructure:"minio_access_key"`
	MinioSecretKey              string `mapstructure:"minio_secret_key"`
	MinioBucketName             string `mapstructure:"minio_bucket_name"`
	MinioSecure                 bool   `mapstructure:"minio_secure"`
	MinioPathPrefix             string `mapstructure:"minio_path_prefix"`
	MinioMaxRetryAttempts       uint   `mapstructure:"minio_max_retry_attempts"`
	MinioRetryBackoffMinSeconds int    `mapstructure:"minio_retry_backoff_min_seconds"`
	MinioRetryBackoffMaxSeconds int    `mapstructure:"minio_retry_backoff_max_seconds"`
	MinioTimeout                int    `mapstructure:"minio_timeout"`
	MinioIntervalCB             uint32 `mapstructure:"minio_interval_cb"`
	MinioConsecutiveFailuresCB  uint32 `mapstructure:"minio_consecutive_failures_cb"`

	KafkaBootstrapServer       string `mapstructure:"kafka_bootstrap_server"`
	KafkaSASLEnabled           bool   `mapstructure:"kafka_sasl_enabled"`
	KafkaUsername              string `mapstructure:"kafka_username"          validate:"required_if=KafkaSASLEnabled true"`
	KafkaPassword              string `mapstructure:"kafka_password"          validate:"required_if=KafkaSASLEnabled true"`
	KafkaEventTopic            string `mapstructure:"kafka_event_topic"`
	KafkaDispatchTopic         string `mapstructure:"kafka_dispatch_topic"`
	KafkaDispatchGroupID       string `mapstructure:"kafka_dispatch_group_id"`
	KafkaIntervalCB            uint32 `mapstructure:"kafka_interval_cb"`
	KafkaConsecutiveFailuresCB uint32 `mapstructure:"kafka_consecutive_failures_cb"`

	PrometheusPort    string `mapstructure:"prometheus_port"`
	PrometheusTimeout int    `mapstructure:"prometheus_timeout"`

	HealthCheckTimeout           int `mapstructure:"health_check_timeout"`
	HealthCheckerMonitorInterval int `mapstructure:"health_checker_monitor_interval"`
}

var Conf Config

func init() {
	err := loadEnvConfig(&Conf)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.String("error", err.Error()))
	}
}

// TwilioConfigured reports whether real provider credentials are present.
func (c *Config) TwilioConfigured() bool {
	return c.TwilioAccountSid != "" && c.TwilioAuthToken != "" && c.TwilioPhoneNumber != ""
}

func (c *Config) OpenAIConfigured() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) MinioConfigured() bool {
	return c.MinioEndpointURL != "" && c.MinioBucketName != ""
}

func (c *Config) KafkaConfigured() bool {
	return c.KafkaBootstrapServer != ""
}

func loadEnvConfig(cfg *Config) error {
	viper.AutomaticEnv()
	viper.AllowEmptyEnv(true)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setupDefaults()

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	err := viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError

		ok := errors.As(err, &configFileNotFoundError)
		if !ok {
			return err
		}
	}

	err = viper.Unmarshal(cfg)
	if err != nil {
		return err
	}

	return Validate(cfg)
}

func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

func setupDefaults() {
	confType := reflect.TypeOf(Conf)
	for i := range confType.NumField() {
		field := confType.Field(i)
		viper.SetDefault(field.Tag.Get("mapstructure"), "")
	}

	viper.SetDefault("HTTP_PORT", "3000")
	viper.SetDefault("HTTP_TIMEOUT", "30")
	viper.SetDefault("HTTP_DRAIN_TIMEOUT", "10")
	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("STORE_BACKEND", BackendMemory)
	viper.SetDefault("POSTGRES_PORT", "5432")
	viper.SetDefault("SQLITE_PATH", "./fleetcomm.db")
	viper.SetDefault("DB_INTERVAL_CB", "30")
	viper.SetDefault("DB_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("TWILIO_BASE_URL", "https://api.twilio.com")
	viper.SetDefault("TWILIO_TIMEOUT", "15")
	viper.SetDefault("TWILIO_RETRY_MAX_ATTEMPTS", "3")
	viper.SetDefault("TWILIO_RETRY_BACKOFF_MIN", "1")
	viper.SetDefault("TWILIO_RETRY_BACKOFF_MAX", "5")
	viper.SetDefault("TWILIO_INTERVAL_CB", "30")
	viper.SetDefault("TWILIO_CONSECUTIVE_FAILURES_CB", "5")
	viper.SetDefault("TWILIO_VOICE", "Polly.Joanna-Generative")
	viper.SetDefault("TWILIO_LANGUAGE", "en-US")
	viper.SetDefault("DISPATCH_SMS_DELAY_MS", "1000")
	viper.SetDefault("DISPATCH_VOICE_DELAY_MS", "2000")
	viper.SetDefault("DISPATCH_MAX_ATTEMPTS", "1")
	viper.SetDefault("DISPATCH_RETRY_DELAY_MS", "500")
	viper.SetDefault("DISPATCH_POOL_SIZE", "4")
	viper.SetDefault("WEBHOOK_POOL_SIZE", "16")
	viper.SetDefault("DEAD_LETTER_POOL_SIZE", "3")
	viper.SetDefault("DEADLETTER_MAX_RETRIES", "10")
	viper.SetDefault("DEADLETTER_INTERVAL", "1")
	viper.SetDefault("DEADLETTER_RETRY_DELAY", "1")
	viper.SetDefault("DEADLETTER_BATCH_LIMIT", "100")
	viper.SetDefault("OPENAI_MODEL", "gpt-3.5-turbo")
	viper.SetDefault("OPENAI_TIMEOUT", "30")
	viper.SetDefault("OPENAI_RETRY_MAX_ATTEMPTS", "2")
	viper.SetDefault("OPENAI_RETRY_MIN_BACKOFF", "1")
	viper.SetDefault("OPENAI_RETRY_MAX_BACKOFF", "5")
	viper.SetDefault("OPENAI_INTERVAL_CB", "30")
	viper.SetDefault("OPENAI_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("MINIO_SECURE", "true")
	viper.SetDefault("MINIO_PATH_PREFIX", "recordings")
	viper.SetDefault("MINIO_MAX_RETRY_ATTEMPTS", "3")
	viper.SetDefault("MINIO_RETRY_BACKOFF_MIN_SECONDS", "1")
	viper.SetDefault("MINIO_RETRY_BACKOFF_MAX_SECONDS", "10")
	viper.SetDefault("MINIO_TIMEOUT", "60")
	viper.SetDefault("MINIO_INTERVAL_CB", "300")
	viper.SetDefault("MINIO_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("KAFKA_SASL_ENABLED", "false")
	viper.SetDefault("KAFKA_EVENT_TOPIC", "fleetcomm-campaign-events")
	viper.SetDefault("KAFKA_DISPATCH_TOPIC", "fleetcomm-dispatch")
	viper.SetDefault("KAFKA_DISPATCH_GROUP_ID", "fleetcomm-dispatcher")
	viper.SetDefault("KAFKA_INTERVAL_CB", "30")
	viper.SetDefault("KAFKA_CONSECUTIVE_FAILURES_CB", "5")
	viper.SetDefault("PROMETHEUS_PORT", "2112")
	viper.SetDefault("PROMETHEUS_TIMEOUT", "60")
	viper.SetDefault("HEALTH_CHECK_TIMEOUT", "5")
	viper.SetDefault("HEALTH_CHECKER_MONITOR_INTERVAL", "10")
}
