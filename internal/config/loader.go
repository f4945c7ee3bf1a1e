package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"openai", "deepgram", "whisper", "whisper-native"},
	"tts": {"openai", "elevenlabs", "coqui"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// from the environment, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv replaces ${VAR} with the environment value. Bare $VAR is left
// alone so literal dollar signs in prompts or DSNs survive.
func expandEnv(s string) string {
	var sb strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			sb.WriteString(s)
			return sb.String()
		}
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			sb.WriteString(s)
			return sb.String()
		}
		sb.WriteString(s[:start])
		sb.WriteString(os.Getenv(s[start+2 : start+end]))
		s = s[start+end+1:]
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.Memory.HistoryWindow <= 0 {
		cfg.Memory.HistoryWindow = 24
	}
	if cfg.Transcript.PhoneticThreshold <= 0 {
		cfg.Transcript.PhoneticThreshold = 0.90
	}
	cfg.Interview = cfg.Interview.WithDefaults()
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if p := cfg.Server.MetricsPath; p != "" && !strings.HasPrefix(p, "/") {
		errs = append(errs, fmt.Errorf("server.metrics_path %q must start with /", p))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("llm", cfg.Providers.PlanLLM.Name)
	for i, e := range cfg.Providers.Fallbacks.STT {
		errs = append(errs, validateFallback("stt", i, e))
	}
	for i, e := range cfg.Providers.Fallbacks.LLM {
		errs = append(errs, validateFallback("llm", i, e))
	}
	for i, e := range cfg.Providers.Fallbacks.TTS {
		errs = append(errs, validateFallback("tts", i, e))
	}

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; every interviewer turn will use a fallback reply")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; candidates must use browser speech recognition")
	}

	iv := cfg.Interview
	if iv.TTSMode != "" && !iv.TTSMode.IsValid() {
		errs = append(errs, fmt.Errorf("interview.tts_mode %q is invalid; valid values: server, browser", iv.TTSMode))
	}
	if iv.TTSMode == TTSServer && cfg.Providers.TTS.Name == "" {
		slog.Warn("interview.tts_mode is server but providers.tts is not configured; replies fall back to estimated speech delays")
	}
	if iv.MinCandidateTurns > iv.MaxCandidateTurns && iv.MaxCandidateTurns > 0 {
		errs = append(errs, fmt.Errorf("interview.min_candidate_turns %d exceeds max_candidate_turns %d", iv.MinCandidateTurns, iv.MaxCandidateTurns))
	}
	if iv.MinSpeechDelay > iv.MaxSpeechDelay && iv.MaxSpeechDelay > 0 {
		errs = append(errs, fmt.Errorf("interview.min_speech_delay %s exceeds max_speech_delay %s", iv.MinSpeechDelay, iv.MaxSpeechDelay))
	}
	if iv.Temperature < 0 || iv.Temperature > 2 {
		errs = append(errs, fmt.Errorf("interview.temperature %.2f is out of range [0, 2]", iv.Temperature))
	}

	if cfg.Memory.PostgresDSN == "" {
		slog.Warn("memory.postgres_dsn is empty; interview history will not survive a restart")
	}
	if t := cfg.Transcript.PhoneticThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("transcript.phonetic_threshold %.2f is out of range [0, 1]", t))
	}

	return errors.Join(errs...)
}

func validateFallback(kind string, i int, e ProviderEntry) error {
	if e.Name == "" {
		return fmt.Errorf("providers.fallbacks.%s[%d].name is required", kind, i)
	}
	validateProviderName(kind, e.Name)
	return nil
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
