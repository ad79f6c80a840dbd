package metrics

// Event names shared by the conversation components.
const (
	EventTurnGranted     = "turn_granted"
	EventTurnConsumed    = "turn_consumed"
	EventTurnPaused      = "turn_paused"
	EventTurnResumed     = "turn_resumed"
	EventStateChange     = "state_change"
	EventShutdown        = "shutdown_requested"
	EventParticipantUp   = "participant_started"
	EventParticipantDown = "participant_stopped"

	EventTurnCompleted = "turn_completed"
	EventTurnFailed    = "turn_failed"
	EventHumanSpoke    = "human_spoke"

	EventGenerateMs   = "generate_ms"
	EventSynthesizeMs = "synthesize_ms"
	EventAlignMs      = "align_ms"
	EventPresentMs    = "present_ms"
	EventTranscribeMs = "transcribe_ms"

	EventTokens        = "llm_tokens"
	EventSpeechSeconds = "speech_seconds"

	EventTranscriptAppend = "transcript_append"
	EventBackupFailed     = "backup_failed"
	EventIngest           = "chat_ingested"
	EventSendDropped      = "send_dropped"

	EventRateLimit     = "rate_limit"
	EventBreakerOpen   = "breaker_open"
	EventBreakerClose  = "breaker_close"
	EventBreakerDenied = "breaker_denied"
)
