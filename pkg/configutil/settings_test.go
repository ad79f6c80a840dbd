package configutil

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type elevenSettings struct {
	APIKey  string        `mapstructure:"api_key"`
	VoiceID string        `mapstructure:"voice_id"`
	Timeout time.Duration `mapstructure:"timeout"`
	Stable  *bool         `mapstructure:"stable"`
}

func TestDecodeCheckedNormalizesKeys(t *testing.T) {
	input := map[string]any{
		"API-Key": "k",
		"voiceId": "v",
		"timeout": "2s",
		"stable":  "true",
	}
	var out elevenSettings
	err := DecodeChecked("vendors.tts.settings", input, Schema{
		Required: []string{"api_key", "voice_id"},
		Optional: []string{"timeout", "stable"},
	}, &out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.APIKey != "k" || out.VoiceID != "v" {
		t.Fatalf("unexpected decode result %+v", out)
	}
	if out.Timeout != 2*time.Second {
		t.Fatalf("expected 2s timeout, got %s", out.Timeout)
	}
	if !BoolValue(out.Stable, false) {
		t.Fatalf("expected stable=true")
	}
}

func TestDecodeCheckedReportsMissingAndUnknown(t *testing.T) {
	var out elevenSettings
	err := DecodeChecked("vendors.tts.settings", map[string]any{"bogus": 1}, Schema{
		Required: []string{"api_key"},
	}, &out)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "vendors.tts.settings") || !strings.Contains(msg, "missing: api_key") || !strings.Contains(msg, "unknown: bogus") {
		t.Fatalf("unexpected error %q", msg)
	}
}

func TestValidateSettingsSuggestsAndFlagsUnsetEnv(t *testing.T) {
	err := ValidateSettings(map[string]any{
		"api_key":  "${ELEVENLABS_API_KEY}",
		"voice_di": "abc",
	}, Schema{
		Required: []string{"api_key"},
		Optional: []string{"voice_id", "model_id"},
	})
	var serr *SchemaError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if len(serr.Unset) != 1 || serr.Unset[0] != "api_key" || len(serr.Missing) != 0 {
		t.Fatalf("unexpected unset/missing %+v", serr)
	}
	if serr.Suggest["voice_di"] != "voice_id" {
		t.Fatalf("expected suggestion, got %v", serr.Suggest)
	}
	want := "env not set for: api_key; unknown: voice_di (did you mean voice_id?)"
	if err.Error() != want {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestValidateSettingsNoSuggestionForDistantKeys(t *testing.T) {
	err := ValidateSettings(map[string]any{"temperature": 1}, Schema{Optional: []string{"model"}})
	var serr *SchemaError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if _, ok := serr.Suggest["temperature"]; ok {
		t.Fatalf("unexpected suggestion %v", serr.Suggest)
	}
}

func TestMillis(t *testing.T) {
	if Millis(0, time.Second) != time.Second {
		t.Fatalf("expected fallback")
	}
	if Millis(250, time.Second) != 250*time.Millisecond {
		t.Fatalf("expected 250ms")
	}
}
