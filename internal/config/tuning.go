package config

import (
	"os"
	"strconv"
	"strings"
	"unicode"
)

// Environment overrides for worker sampling. Role-scoped variants append the
// normalized role, e.g. TRIBUNAL_WORKER_AUDITOR_TEMPERATURE.
const (
	EnvWorkerTemperature = "TRIBUNAL_WORKER_TEMPERATURE"
	EnvWorkerMaxTokens   = "TRIBUNAL_WORKER_MAX_TOKENS"
)

// RoleTuning overrides sampling for one worker role. Nil fields inherit.
type RoleTuning struct {
	Temperature *float32 `yaml:"temperature,omitempty"`
	MaxTokens   *int     `yaml:"max_tokens,omitempty"`
}

// ResolveWorkerOptions layers the sampling options for one role: the
// roster's fallback temperature, then the global worker config, then the
// role config, then the environment, global before role-scoped. A max-token
// value of zero leaves the provider default in place.
func (cfg Config) ResolveWorkerOptions(role string, fallbackTemp float32) (float32, int) {
	temp := clampTemperature(fallbackTemp)
	maxTokens := 0

	if cfg.Worker.Temperature != nil {
		temp = clampTemperature(*cfg.Worker.Temperature)
	}
	if cfg.Worker.MaxTokens != nil {
		maxTokens = clampMaxTokens(*cfg.Worker.MaxTokens)
	}

	if roleCfg, ok := cfg.resolveRoleTuning(role); ok {
		if roleCfg.Temperature != nil {
			temp = clampTemperature(*roleCfg.Temperature)
		}
		if roleCfg.MaxTokens != nil {
			maxTokens = clampMaxTokens(*roleCfg.MaxTokens)
		}
	}

	if parsed, ok := readEnvFloat32(EnvWorkerTemperature); ok {
		temp = clampTemperature(parsed)
	}
	if parsed, ok := readEnvInt(EnvWorkerMaxTokens); ok {
		maxTokens = clampMaxTokens(parsed)
	}

	if roleKey := roleToEnvKey(role); roleKey != "" {
		if parsed, ok := readEnvFloat32("TRIBUNAL_WORKER_" + roleKey + "_TEMPERATURE"); ok {
			temp = clampTemperature(parsed)
		}
		if parsed, ok := readEnvInt("TRIBUNAL_WORKER_" + roleKey + "_MAX_TOKENS"); ok {
			maxTokens = clampMaxTokens(parsed)
		}
	}

	return temp, maxTokens
}

func (cfg Config) resolveRoleTuning(role string) (RoleTuning, bool) {
	if len(cfg.Worker.Roles) == 0 {
		return RoleTuning{}, false
	}
	want := normalizeRoleKey(role)
	if want == "" {
		return RoleTuning{}, false
	}
	for key, value := range cfg.Worker.Roles {
		if normalizeRoleKey(key) == want {
			return value, true
		}
	}
	return RoleTuning{}, false
}

func roleToEnvKey(role string) string {
	normalized := normalizeRoleKey(role)
	if normalized == "" {
		return ""
	}
	return strings.ToUpper(normalized)
}

// normalizeRoleKey folds a role name to lowercase letters and digits with
// single underscores, so "persona:persona-3" and "Persona Persona 3" match.
func normalizeRoleKey(role string) string {
	trimmed := strings.TrimSpace(strings.ToLower(role))
	if trimmed == "" {
		return ""
	}
	var b strings.Builder
	lastUnderscore := false
	for _, r := range trimmed {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

func clampTemperature(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 2 {
		return 2
	}
	return v
}

func clampMaxTokens(v int) int {
	if v <= 0 {
		return 0
	}
	return v
}

func readEnvFloat32(key string) (float32, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, false
	}
	return float32(parsed), true
}

func readEnvInt(key string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return parsed, true
}
