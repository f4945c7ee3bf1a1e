package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxhire/internal/config"
)

const fullYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  allowed_origins: ["app.example.com"]
providers:
  stt:
    name: whisper
    base_url: http://localhost:8081
    model: base.en
  llm:
    name: openai
    api_key: ${VOXHIRE_TEST_LLM_KEY}
    model: gpt-4o-mini
  tts:
    name: elevenlabs
    api_key: el-key
    options:
      output_format: pcm_16000
  fallbacks:
    stt:
      - name: deepgram
        api_key: dg-key
  circuit_breaker:
    max_failures: 4
    reset_timeout: 45s
interview:
  language: de
  vad_stop_delay: 700ms
  fallback_hold: 2m
  max_candidate_turns: 12
memory:
  postgres_dsn: postgres://localhost/voxhire
  history_window: 40
transcript:
  phonetic_threshold: 0.85
`

func TestLoadFromReader_Full(t *testing.T) {
	t.Setenv("VOXHIRE_TEST_LLM_KEY", "sk-from-env")

	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Providers.LLM.APIKey != "sk-from-env" {
		t.Errorf("llm.api_key = %q, want expanded env value", cfg.Providers.LLM.APIKey)
	}
	if got := config.OptString(cfg.Providers.TTS.Options, "output_format"); got != "pcm_16000" {
		t.Errorf("tts output_format = %q", got)
	}
	if len(cfg.Providers.Fallbacks.STT) != 1 || cfg.Providers.Fallbacks.STT[0].Name != "deepgram" {
		t.Errorf("fallbacks.stt = %+v", cfg.Providers.Fallbacks.STT)
	}
	if cfg.Providers.CircuitBreaker.ResetTimeout != 45*time.Second {
		t.Errorf("circuit_breaker.reset_timeout = %v", cfg.Providers.CircuitBreaker.ResetTimeout)
	}

	iv := cfg.Interview
	if iv.Language != "de" || iv.VADStopDelay != 700*time.Millisecond || iv.FallbackHold != 2*time.Minute {
		t.Errorf("interview overrides not applied: %+v", iv)
	}
	if iv.MaxCandidateTurns != 12 {
		t.Errorf("max_candidate_turns = %d, want 12", iv.MaxCandidateTurns)
	}
	// Untouched knobs keep their defaults.
	if iv.IdleFlushDelay != 1700*time.Millisecond {
		t.Errorf("idle_flush_delay = %v, want default 1.7s", iv.IdleFlushDelay)
	}
	if cfg.Memory.HistoryWindow != 40 {
		t.Errorf("history_window = %d", cfg.Memory.HistoryWindow)
	}
	if cfg.Transcript.PhoneticThreshold != 0.85 {
		t.Errorf("phonetic_threshold = %v", cfg.Transcript.PhoneticThreshold)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := config.InterviewConfig{}.WithDefaults()
	if cfg.Interview != want {
		t.Errorf("interview defaults = %+v, want %+v", cfg.Interview, want)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"listen_addr", cfg.Server.ListenAddr, ":8080"},
		{"log_level", cfg.Server.LogLevel, config.LogInfo},
		{"metrics_path", cfg.Server.MetricsPath, "/metrics"},
		{"shutdown_timeout", cfg.Server.ShutdownTimeout, 15 * time.Second},
		{"history_window", cfg.Memory.HistoryWindow, 24},
		{"vad_stop_delay", want.VADStopDelay, 900 * time.Millisecond},
		{"min_turn_bytes", want.MinTurnBytes, 2600},
		{"min_turn_chunks", want.MinTurnChunks, 3},
		{"fallback_hold", want.FallbackHold, 180 * time.Second},
		{"generation_timeout", want.GenerationTimeout, 12 * time.Second},
		{"plan_timeout", want.PlanTimeout, 8 * time.Second},
		{"speaking_rate", want.SpeakingRate, 4.2},
		{"tts_mode", want.TTSMode, config.TTSServer},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("interview:\n  vad_stop: 1s\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "bad log level",
			yaml: "server:\n  log_level: loud\n",
			want: []string{"server.log_level"},
		},
		{
			name: "bad tts mode",
			yaml: "interview:\n  tts_mode: radio\n",
			want: []string{"interview.tts_mode"},
		},
		{
			name: "turn bounds inverted",
			yaml: "interview:\n  min_candidate_turns: 8\n  max_candidate_turns: 4\n",
			want: []string{"min_candidate_turns"},
		},
		{
			name: "fallback without name and bad threshold",
			yaml: "providers:\n  fallbacks:\n    llm:\n      - model: x\ntranscript:\n  phonetic_threshold: 1.5\n",
			want: []string{"providers.fallbacks.llm[0].name", "transcript.phonetic_threshold"},
		},
		{
			name: "incomplete tls",
			yaml: "server:\n  tls:\n    cert_file: a.pem\n",
			want: []string{"server.tls"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not mention %q", err, w)
				}
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/voxhire.yaml")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "config: open") {
		t.Errorf("err = %v", err)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
	if names := reg.Names("stt"); len(names) != 0 {
		t.Errorf("Names(stt) = %v, want empty", names)
	}
}

func TestOptInt(t *testing.T) {
	t.Parallel()
	opts := map[string]any{"rate": 22050, "f": 3.0, "frac": 2.5, "s": "x"}
	cases := map[string]int{"rate": 22050, "f": 3, "frac": 0, "s": 0, "missing": 0}
	for k, want := range cases {
		if got := config.OptInt(opts, k); got != want {
			t.Errorf("OptInt(%q) = %d, want %d", k, got, want)
		}
	}
}
