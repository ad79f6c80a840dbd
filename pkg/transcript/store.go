package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/roundtable/pkg/errorsx"
	"github.com/harunnryd/roundtable/pkg/llm"
	"github.com/harunnryd/roundtable/pkg/logging"
	"github.com/harunnryd/roundtable/pkg/metrics"
)

// ErrNoBackup is returned by Backup.Load when nothing has been saved yet.
var ErrNoBackup = errors.New("no transcript backup")

// Backup persists a whole transcript, overwriting the previous copy.
type Backup interface {
	Load(ctx context.Context, owner string) ([]Message, error)
	Save(ctx context.Context, owner string, messages []Message) error
}

// Store is one participant's append-only view of the conversation.
type Store struct {
	owner  string
	backup Backup
	obs    metrics.Observer
	logger *slog.Logger

	mu       sync.Mutex
	messages []Message
}

func NewStore(owner string, backup Backup, logger *slog.Logger) *Store {
	return &Store{
		owner:  owner,
		backup: backup,
		obs:    metrics.NoopObserver{},
		logger: logging.NewComponentLogger(logger, "transcript").With("owner", owner),
	}
}

// WithObserver reports appends and backup failures to obs.
func (s *Store) WithObserver(obs metrics.Observer) *Store {
	if obs != nil {
		s.obs = obs
	}
	return s
}

func (s *Store) Owner() string { return s.owner }

// LoadOrSeed restores the transcript from its backup when one can be read and
// parsed; the restored sequence is trusted verbatim. Otherwise the store is
// seeded with a single system entry holding the persona.
func (s *Store) LoadOrSeed(ctx context.Context, systemPrompt string) (restored bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backup != nil {
		msgs, err := s.backup.Load(ctx, s.owner)
		switch {
		case err == nil:
			s.messages = msgs
			if s.messages == nil {
				s.messages = []Message{}
			}
			s.logger.Info("transcript_restored", "entries", len(msgs))
			return true
		case errors.Is(err, ErrNoBackup):
		default:
			s.logger.Warn("backup_read_failed",
				"reason_code", errorsx.ReasonBackupRead,
				"error", err,
			)
		}
	}
	s.messages = []Message{NewMessage(RoleSystem, systemPrompt)}
	return false
}

// Append adds msg and then overwrites the backup with the whole sequence. A
// backup failure is returned but the in-memory append is kept.
func (s *Store) Append(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	tags := map[string]string{"participant": s.owner, "role": string(msg.Role)}
	metrics.Record(s.obs, metrics.EventTranscriptAppend, float64(len(s.messages)), tags)
	if s.backup == nil {
		return nil
	}
	snapshot := make([]Message, len(s.messages))
	copy(snapshot, s.messages)
	if err := s.backup.Save(ctx, s.owner, snapshot); err != nil {
		metrics.Record(s.obs, metrics.EventBackupFailed, 1, tags)
		s.logger.Error("backup_write_failed",
			"reason_code", errorsx.ReasonBackupWrite,
			"error", err,
		)
		return errorsx.Wrap(fmt.Errorf("backup %s: %w", s.owner, err), errorsx.ReasonBackupWrite)
	}
	return nil
}

// Messages returns a copy of the stored entries.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Render converts the transcript into role/content pairs for generation.
// It never fails, whatever shape the stored content has.
func (s *Store) Render() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, 0, len(s.messages))
	for _, m := range s.messages {
		role := string(m.Role)
		if role == "" {
			role = llm.RoleUser
		}
		out = append(out, llm.Message{Role: role, Content: m.Content.String()})
	}
	return out
}
