package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonGeneration    ReasonCode = "generation"
	ReasonRateLimit     ReasonCode = "rate_limit"
	ReasonCircuitOpen   ReasonCode = "circuit_open"
	ReasonSynthesis     ReasonCode = "synthesis"
	ReasonAlignment     ReasonCode = "alignment"
	ReasonPublish       ReasonCode = "publish"
	ReasonTranscription ReasonCode = "transcription"
	ReasonRecord        ReasonCode = "record"

	ReasonBackupRead  ReasonCode = "backup_read"
	ReasonBackupWrite ReasonCode = "backup_write"

	ReasonPresentationSend ReasonCode = "presentation_send"
	ReasonIngest           ReasonCode = "ingest"

	ReasonPanic    ReasonCode = "panic"
	ReasonShutdown ReasonCode = "shutdown"
)
