package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/joelkehle/tender-advisor/internal/tenderanalysis"
)

const EnvPrefix = "TENDER"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Report    ReportConfig    `mapstructure:"report"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes" validate:"gt=0"`
}

type LLMConfig struct {
	// Provider "none" runs without generation: local keywords, no recommendation.
	Provider        string `mapstructure:"provider" validate:"oneof=anthropic openai none"`
	Model           string `mapstructure:"model"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key" validate:"required_if=Provider anthropic"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key" validate:"required_if=Provider openai"`
	BaseURL         string `mapstructure:"base_url"`
	MaxTokens       int64  `mapstructure:"max_tokens" validate:"gte=0"`
	Attempts        int    `mapstructure:"attempts" validate:"gte=1,lte=5"`
}

type SearchConfig struct {
	Source             string `mapstructure:"source" validate:"oneof=datastore ted sqlite"`
	BaseURL            string `mapstructure:"base_url"`
	ResourceID         string `mapstructure:"resource_id"`
	PageSize           int    `mapstructure:"page_size" validate:"gte=1,lte=1000"`
	TargetRecords      int    `mapstructure:"target_records" validate:"gte=1,lte=1000"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute" validate:"gte=1"`
	SQLitePath         string `mapstructure:"sqlite_path" validate:"required_if=Source sqlite"`
}

type PricingConfig struct {
	MinPlausibleAward float64  `mapstructure:"min_plausible_award" validate:"gt=0"`
	CurrencyCodes     []string `mapstructure:"currency_codes"`
	// FieldSet names the record layout: gebiz for data.gov.sg, ted for TED notices.
	FieldSet string `mapstructure:"field_set" validate:"oneof=gebiz ted"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
	Insecure     bool   `mapstructure:"insecure"`
}

type ReportConfig struct {
	ChromePath string `mapstructure:"chrome_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 180*time.Second)
	v.SetDefault("server.request_timeout", 150*time.Second)
	v.SetDefault("server.max_upload_bytes", int64(10<<20))

	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_tokens", tenderanalysis.DefaultMaxTokens)
	v.SetDefault("llm.attempts", 3)

	v.SetDefault("search.source", "datastore")
	v.SetDefault("search.base_url", "")
	v.SetDefault("search.resource_id", tenderanalysis.GeBIZResourceID)
	v.SetDefault("search.page_size", tenderanalysis.DefaultTargetRecords)
	v.SetDefault("search.target_records", tenderanalysis.DefaultTargetRecords)
	v.SetDefault("search.rate_limit_per_minute", tenderanalysis.DefaultRateLimitPerMinute)
	v.SetDefault("search.sqlite_path", "")

	v.SetDefault("pricing.min_plausible_award", float64(tenderanalysis.DefaultMinPlausibleAward))
	v.SetDefault("pricing.currency_codes", []string{"SGD"})
	v.SetDefault("pricing.field_set", "gebiz")

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "tender-advisor")
	v.SetDefault("telemetry.insecure", false)

	v.SetDefault("report.chrome_path", "")
}

// Load reads and validates configuration from defaults, an optional file and
// TENDER_* environment variables, in increasing priority. configFile may be
// empty; its format follows the file extension (yaml, toml, json).
func Load(configFile string) (Config, error) {
	cfg, err := Read(configFile)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read is Load without validation, for tools that use only part of the config.
func Read(configFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Provider keys are also honored under their conventional names.
	_ = v.BindEnv("llm.anthropic_api_key", EnvPrefix+"_LLM_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("llm.openai_api_key", EnvPrefix+"_LLM_OPENAI_API_KEY", "OPENAI_API_KEY")

	if strings.TrimSpace(configFile) != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fieldPath(fe.Namespace()), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// fieldPath turns "Config.LLM.AnthropicAPIKey" into "LLM.AnthropicAPIKey".
func fieldPath(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RecordFields returns the record layout selected by pricing.field_set.
func (c Config) RecordFields() tenderanalysis.RecordFields {
	if c.Pricing.FieldSet == "ted" || c.Search.Source == "ted" {
		return tenderanalysis.TEDFields
	}
	return tenderanalysis.GeBIZFields
}
