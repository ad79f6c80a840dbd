package configutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

var keyFolder = strings.NewReplacer("_", "", "-", "")

// DecodeChecked checks input against schema, then decodes it into out.
// Errors are prefixed with path, e.g. "vendors.tts.settings".
func DecodeChecked(path string, input map[string]any, schema Schema, out any) error {
	if err := ValidateSettings(input, schema); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if len(input) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		MatchName: func(key, field string) bool { return normalizeKey(key) == normalizeKey(field) },
	})
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func RequireString(value, path string) error {
	if strings.TrimSpace(value) != "" {
		return nil
	}
	return fmt.Errorf("%s is required", path)
}

// BoolValue dereferences value, or returns fallback when it was not set.
func BoolValue(value *bool, fallback bool) bool {
	if value != nil {
		return *value
	}
	return fallback
}

// Millis reads a *_ms setting. Zero and negative counts mean "use fallback".
func Millis(ms int, fallback time.Duration) time.Duration {
	if ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

// normalizeKey folds case, underscores and dashes so voice_id, voiceId
// and voice-id name the same setting.
func normalizeKey(key string) string {
	return keyFolder.Replace(strings.ToLower(key))
}
