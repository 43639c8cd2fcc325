package config

import (
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Database struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"ssl-mode"`
}

type KafkaWriter struct {
	BatchSize      int `mapstructure:"batch-size"`
	BatchTimeoutMs int `mapstructure:"batch-timeout-ms"`
}

type KafkaBroker struct {
	URL string `mapstructure:"url"`
}

type KafkaTopic struct {
	OrderTransitions string `mapstructure:"order-transitions"`
}

type KafkaReader struct {
	GroupID string `mapstructure:"group-id"`
}

type Kafka struct {
	Writer KafkaWriter `mapstructure:"writer"`
	Broker KafkaBroker `mapstructure:"broker"`
	Topic  KafkaTopic  `mapstructure:"topic"`
	Reader KafkaReader `mapstructure:"reader"`
}

type Credentials struct {
	KeyID     string `mapstructure:"key-id" json:"keyId"`
	KeySecret string `mapstructure:"key-secret" json:"keySecret"`
}

type Gateway struct {
	BaseURL            string                 `mapstructure:"base-url"`
	Currency           string                 `mapstructure:"currency"`
	TimeoutMs          int                    `mapstructure:"timeout-ms"`
	ReuseCorrelationID bool                   `mapstructure:"reuse-correlation-id"`
	Channels           map[string]Credentials `mapstructure:"channels"`
}

type Webhook struct {
	Secret          string `mapstructure:"secret"`
	SignatureHeader string `mapstructure:"signature-header"`
}

type NotifyProducer struct {
	PollingIntervalMs  int `mapstructure:"polling-interval-ms"`
	FetchSize          int `mapstructure:"fetch-size"`
	RescheduleDelayMs  int `mapstructure:"reschedule-delay-ms"`
	MaxPublishAttempts int `mapstructure:"max-publish-attempts"`
}

type NotifySender struct {
	URL         string `mapstructure:"url"`
	TimeoutMs   int    `mapstructure:"timeout-ms"`
	Parallelism int    `mapstructure:"parallelism"`
}

type Notify struct {
	Producer NotifyProducer `mapstructure:"producer"`
	Sender   NotifySender   `mapstructure:"sender"`
	States   []string       `mapstructure:"states"`
}

type Server struct {
	Port string `mapstructure:"port"`
}

type Metrics struct {
	URL          string `mapstructure:"url"`
	IntervalMs   int    `mapstructure:"interval-ms"`
	CommonLabels string `mapstructure:"common-labels"`
}

type Logs struct {
	URL string `mapstructure:"url"`
}

type Config struct {
	Database Database `mapstructure:"database"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Gateway  Gateway  `mapstructure:"gateway"`
	Webhook  Webhook  `mapstructure:"webhook"`
	Notify   Notify   `mapstructure:"notify"`
	Server   Server   `mapstructure:"server"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Logs     Logs     `mapstructure:"logs"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("database.ssl-mode", "disable")
	v.SetDefault("kafka.broker.url", "localhost:9092")
	v.SetDefault("kafka.topic.order-transitions", "order-transitions")
	v.SetDefault("kafka.reader.group-id", "payment-service")
	v.SetDefault("kafka.writer.batch-size", 100)
	v.SetDefault("kafka.writer.batch-timeout-ms", 100)
	v.SetDefault("gateway.base-url", "https://api.razorpay.com")
	v.SetDefault("gateway.currency", "INR")
	v.SetDefault("gateway.timeout-ms", 10_000)
	v.SetDefault("webhook.signature-header", "X-Razorpay-Signature")
	v.SetDefault("notify.producer.polling-interval-ms", 500)
	v.SetDefault("notify.producer.fetch-size", 200)
	v.SetDefault("notify.producer.reschedule-delay-ms", 10_000)
	v.SetDefault("notify.producer.max-publish-attempts", 3)
	v.SetDefault("notify.sender.timeout-ms", 10_000)
	v.SetDefault("notify.sender.parallelism", 100)
	v.SetDefault("notify.states", []string{"Cancelled", "PaymentSettled"})
	v.SetDefault("metrics.interval-ms", 10_000)
}

// LoadConfig reads config.yaml from path. Values from a .env file and the
// environment (DATABASE_PASSWORD for database.password) take precedence.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func MustLoadConfig(path string) *Config {
	config, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return config
}
