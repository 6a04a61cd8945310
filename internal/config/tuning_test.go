package config

import "testing"

func float32Ptr(v float32) *float32 { return &v }
func intPtr(v int) *int             { return &v }

func TestResolveWorkerOptionsFallback(t *testing.T) {
	cfg := Default()
	temp, maxTokens := cfg.ResolveWorkerOptions("auditor", 0.3)
	if temp != 0.3 {
		t.Fatalf("temperature = %v, want roster fallback 0.3", temp)
	}
	if maxTokens != 0 {
		t.Fatalf("max tokens = %d, want provider default 0", maxTokens)
	}
}

func TestResolveWorkerOptionsLayering(t *testing.T) {
	cfg := Default()
	cfg.Worker.Temperature = float32Ptr(0.5)
	cfg.Worker.MaxTokens = intPtr(2048)
	cfg.Worker.Roles = map[string]RoleTuning{
		"arbiter": {Temperature: float32Ptr(0.1), MaxTokens: intPtr(4096)},
	}

	if temp, maxTokens := cfg.ResolveWorkerOptions("auditor", 0.9); temp != 0.5 || maxTokens != 2048 {
		t.Fatalf("global layer: temp %v tokens %d, want 0.5/2048", temp, maxTokens)
	}
	if temp, maxTokens := cfg.ResolveWorkerOptions("arbiter", 0.9); temp != 0.1 || maxTokens != 4096 {
		t.Fatalf("role layer: temp %v tokens %d, want 0.1/4096", temp, maxTokens)
	}
}

func TestResolveWorkerOptionsEnvWinsOverConfig(t *testing.T) {
	cfg := Default()
	cfg.Worker.Temperature = float32Ptr(0.5)
	t.Setenv(EnvWorkerTemperature, "0.8")
	t.Setenv(EnvWorkerMaxTokens, "1024")

	temp, maxTokens := cfg.ResolveWorkerOptions("auditor", 0.3)
	if temp != 0.8 {
		t.Fatalf("temperature = %v, env should win", temp)
	}
	if maxTokens != 1024 {
		t.Fatalf("max tokens = %d, env should win", maxTokens)
	}
}

func TestResolveWorkerOptionsRoleEnvWinsOverGlobalEnv(t *testing.T) {
	cfg := Default()
	t.Setenv(EnvWorkerTemperature, "0.8")
	t.Setenv("TRIBUNAL_WORKER_PERSONA_PERSONA_3_TEMPERATURE", "1.1")

	temp, _ := cfg.ResolveWorkerOptions("persona:persona-3", 0.3)
	if temp != 1.1 {
		t.Fatalf("temperature = %v, role-scoped env should win", temp)
	}
}

func TestResolveWorkerOptionsClamps(t *testing.T) {
	cfg := Default()
	cfg.Worker.Temperature = float32Ptr(5.0)
	cfg.Worker.MaxTokens = intPtr(-10)

	temp, maxTokens := cfg.ResolveWorkerOptions("auditor", 0.3)
	if temp != 2 {
		t.Fatalf("temperature = %v, want clamped 2", temp)
	}
	if maxTokens != 0 {
		t.Fatalf("max tokens = %d, want clamped 0", maxTokens)
	}
}

func TestNormalizeRoleKey(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"auditor", "auditor"},
		{"  Persona:persona-3 ", "persona_persona_3"},
		{"case  compiler", "case_compiler"},
		{"", ""},
		{"---", ""},
	}
	for _, tc := range cases {
		if got := normalizeRoleKey(tc.in); got != tc.want {
			t.Fatalf("normalizeRoleKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
