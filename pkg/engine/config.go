package engine

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/harunnryd/roundtable/pkg/artifacts"
	"github.com/harunnryd/roundtable/pkg/transcript"
	"github.com/harunnryd/roundtable/pkg/transports/ws"
)

const (
	EnvPrefix = "ROUNDTABLE"

	DefaultTurnPrompt = "Okay what is your response? Stay in character and keep it to 3 sentences maximum."
)

type Config struct {
	LogLevel      string              `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat     string              `mapstructure:"log_format" validate:"omitempty,oneof=text json"`
	LogFile       string              `mapstructure:"log_file"`
	Vendors       VendorsConfig       `mapstructure:"vendors"`
	Presentation  ws.Config           `mapstructure:"presentation"`
	Artifacts     ArtifactsConfig     `mapstructure:"artifacts"`
	Transcripts   TranscriptsConfig   `mapstructure:"transcripts"`
	Turn          TurnConfig          `mapstructure:"turn"`
	Human         HumanConfig         `mapstructure:"human"`
	ChatLogs      ChatLogsConfig      `mapstructure:"chat_logs"`
	Control       ControlConfig       `mapstructure:"control"`
	Recorder      RecorderConfig      `mapstructure:"recorder"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Agents        []AgentConfig       `mapstructure:"agents" validate:"min=1,max=9,unique=ID,dive"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider" validate:"required"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	LLM     VendorConfig `mapstructure:"llm"`
	TTS     VendorConfig `mapstructure:"tts"`
	Aligner VendorConfig `mapstructure:"aligner"`
	STT     VendorConfig `mapstructure:"stt"`
}

// ArtifactsConfig selects where synthesized audio is published for viewers.
type ArtifactsConfig struct {
	Provider string                `mapstructure:"provider" validate:"oneof=local minio"`
	Prefix   string                `mapstructure:"prefix"`
	Minio    artifacts.MinioConfig `mapstructure:"minio"`
}

type TranscriptsConfig struct {
	Backend string                 `mapstructure:"backend" validate:"oneof=file redis none"`
	Dir     string                 `mapstructure:"dir"`
	Redis   transcript.RedisConfig `mapstructure:"redis"`
}

type TurnConfig struct {
	PollIntervalMS int    `mapstructure:"poll_interval_ms" validate:"gte=0"`
	CooldownMS     int    `mapstructure:"cooldown_ms" validate:"gte=0"`
	DrainTimeoutMS int    `mapstructure:"drain_timeout_ms" validate:"gte=0"`
	TurnPrompt     string `mapstructure:"turn_prompt"`
}

type HumanConfig struct {
	Name            string `mapstructure:"name"`
	SummarizePrompt string `mapstructure:"summarize_prompt"`
}

type ChatLogsConfig struct {
	Dir  string   `mapstructure:"dir"`
	Exts []string `mapstructure:"exts"`
}

type ControlConfig struct {
	Mode string            `mapstructure:"mode" validate:"oneof=tui line"`
	Keys map[string]string `mapstructure:"keys"`
}

type RecorderConfig struct {
	Provider   string `mapstructure:"provider" validate:"oneof=malgo mock"`
	Dir        string `mapstructure:"dir"`
	SampleRate int    `mapstructure:"sample_rate" validate:"gte=0"`
	MockPath   string `mapstructure:"mock_path"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

type ObservabilityConfig struct {
	ArtifactsDir  string  `mapstructure:"artifacts_dir"`
	RetentionDays int     `mapstructure:"retention_days" validate:"gte=0"`
	MetricsFile   string  `mapstructure:"metrics_file"`
	SampleRate    float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	EventBuffer   int     `mapstructure:"event_buffer" validate:"gte=0"`
}

type AgentConfig struct {
	ID         string `mapstructure:"id" validate:"required"`
	Name       string `mapstructure:"name" validate:"required"`
	Voice      string `mapstructure:"voice" validate:"required"`
	Persona    string `mapstructure:"persona" validate:"required"`
	Model      string `mapstructure:"model"`
	TurnPrompt string `mapstructure:"turn_prompt"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "roundtable.log")
	v.SetDefault("presentation.server_addr", ":5000")
	v.SetDefault("presentation.ws_path", "/ws")
	v.SetDefault("presentation.audio_dir", "static/msg")
	v.SetDefault("presentation.audio_path", "/static/msg/")
	v.SetDefault("presentation.send_buffer", 256)
	v.SetDefault("artifacts.provider", "local")
	v.SetDefault("artifacts.prefix", "static/msg")
	v.SetDefault("transcripts.backend", "file")
	v.SetDefault("transcripts.dir", "backups")
	v.SetDefault("transcripts.redis.addr", "localhost:6379")
	v.SetDefault("transcripts.redis.prefix", "roundtable:transcript")
	v.SetDefault("turn.poll_interval_ms", 100)
	v.SetDefault("turn.cooldown_ms", 1000)
	v.SetDefault("turn.drain_timeout_ms", 2000)
	v.SetDefault("turn.turn_prompt", DefaultTurnPrompt)
	v.SetDefault("human.name", "Liv")
	v.SetDefault("chat_logs.dir", "chat_logs")
	v.SetDefault("chat_logs.exts", []string{".log"})
	v.SetDefault("control.mode", "tui")
	v.SetDefault("recorder.provider", "malgo")
	v.SetDefault("recorder.dir", "recordings")
	v.SetDefault("recorder.sample_rate", 16000)
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("observability.retention_days", 0)
	v.SetDefault("observability.sample_rate", 1.0)
	v.SetDefault("observability.event_buffer", 2048)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks the structural rules of the config and reports each
// failing field by its config key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describeField(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describeField(fe validator.FieldError) string {
	key := fe.Namespace()
	if i := strings.Index(key, "."); i >= 0 {
		key = key[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return key + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", key, fe.Param(), fe.Value())
	case "unique":
		return fmt.Sprintf("%s must have unique %s values", key, strings.ToLower(fe.Param()))
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", key, fe.Param())
	case "max":
		return fmt.Sprintf("%s allows at most %s entries", key, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s=%s", key, fe.Tag(), fe.Param())
	}
}

// TurnPromptFor returns the nudge an agent sends, preferring its own.
func (c Config) TurnPromptFor(agent AgentConfig) string {
	if strings.TrimSpace(agent.TurnPrompt) != "" {
		return agent.TurnPrompt
	}
	return c.Turn.TurnPrompt
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)
	cfg.Vendors.Aligner.Settings = expandSettings(cfg.Vendors.Aligner.Settings)
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return expandKeepUnset(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

// expandKeepUnset leaves ${VAR} in place when VAR is not set, so the vendor
// settings check can name the missing variable instead of an empty value.
func expandKeepUnset(s string) string {
	return os.Expand(s, func(name string) string {
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return "${" + name + "}"
	})
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				val := v.MapIndex(key)
				expanded := os.ExpandEnv(val.String())
				v.SetMapIndex(key, reflect.ValueOf(expanded))
			}
		}
	}
}
