package config

// ConfigDiff describes what changed between two configs. Only fields that can
// be applied without a restart are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// InterviewChanged is true when any knob in the interview section
	// changed. New sessions pick up the new values; running sessions keep
	// the values they started with.
	InterviewChanged bool
	InterviewFields  []string

	TranscriptChanged bool

	// RestartRequired lists sections that changed but only take effect
	// after a restart.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.InterviewFields = diffInterview(old.Interview, new.Interview)
	d.InterviewChanged = len(d.InterviewFields) > 0

	d.TranscriptChanged = old.Transcript != new.Transcript

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.MetricsPath != new.Server.MetricsPath {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !sameEntry(old.Providers.STT, new.Providers.STT) ||
		!sameEntry(old.Providers.LLM, new.Providers.LLM) ||
		!sameEntry(old.Providers.TTS, new.Providers.TTS) ||
		!sameEntry(old.Providers.PlanLLM, new.Providers.PlanLLM) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Memory != new.Memory {
		d.RestartRequired = append(d.RestartRequired, "memory")
	}
	return d
}

func diffInterview(old, new InterviewConfig) []string {
	var fields []string
	check := func(name string, changed bool) {
		if changed {
			fields = append(fields, name)
		}
	}
	check("language", old.Language != new.Language)
	check("tts_mode", old.TTSMode != new.TTSMode)
	check("voice", old.Voice != new.Voice)
	check("vad_stop_delay", old.VADStopDelay != new.VADStopDelay)
	check("idle_flush_delay", old.IdleFlushDelay != new.IdleFlushDelay)
	check("min_turn_bytes", old.MinTurnBytes != new.MinTurnBytes)
	check("min_turn_chunks", old.MinTurnChunks != new.MinTurnChunks)
	check("stt_failure_threshold", old.STTFailureThreshold != new.STTFailureThreshold)
	check("stt_empty_threshold", old.STTEmptyThreshold != new.STTEmptyThreshold)
	check("fallback_hold", old.FallbackHold != new.FallbackHold)
	check("stt_timeout", old.STTTimeout != new.STTTimeout)
	check("generation_timeout", old.GenerationTimeout != new.GenerationTimeout)
	check("plan_timeout", old.PlanTimeout != new.PlanTimeout)
	check("speaking_rate", old.SpeakingRate != new.SpeakingRate)
	check("min_speech_delay", old.MinSpeechDelay != new.MinSpeechDelay)
	check("max_speech_delay", old.MaxSpeechDelay != new.MaxSpeechDelay)
	check("input_gate_interval", old.InputGateInterval != new.InputGateInterval)
	check("hint_interval", old.HintInterval != new.HintInterval)
	check("min_candidate_turns", old.MinCandidateTurns != new.MinCandidateTurns)
	check("max_candidate_turns", old.MaxCandidateTurns != new.MaxCandidateTurns)
	check("max_reply_chars", old.MaxReplyChars != new.MaxReplyChars)
	check("temperature", old.Temperature != new.Temperature)
	check("max_tokens", old.MaxTokens != new.MaxTokens)
	return fields
}

// sameEntry compares the scalar fields of two provider entries. Options maps
// are not compared.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
