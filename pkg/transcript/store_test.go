package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"reflect"
	"testing"

	"github.com/harunnryd/roundtable/pkg/errorsx"
	"github.com/harunnryd/roundtable/pkg/llm"
	"github.com/harunnryd/roundtable/pkg/logging"
	"github.com/harunnryd/roundtable/pkg/metrics"
)

func newFileStore(t *testing.T, dir, owner string) (*Store, *FileBackup) {
	t.Helper()
	backup, err := NewFileBackup(dir)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	return NewStore(owner, backup, logging.Discard()), backup
}

func TestLoadOrSeedSeedsSingleSystemEntry(t *testing.T) {
	store, _ := newFileStore(t, t.TempDir(), "Ava")
	if store.LoadOrSeed(context.Background(), "You are Ava.") {
		t.Fatalf("expected seed without backup")
	}
	msgs := store.Messages()
	if len(msgs) != 1 || msgs[0].Role != RoleSystem || msgs[0].Content.String() != "You are Ava." {
		t.Fatalf("unexpected seed %+v", msgs)
	}
}

func TestBackupRoundTripAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, _ := newFileStore(t, dir, "Ava")
	store.LoadOrSeed(ctx, "You are Ava.")
	structured := Message{Role: RoleUser, Content: Structured(json.RawMessage(`[{"type":"text","text":"hi"}]`))}
	for _, m := range []Message{
		NewMessage(RoleAssistant, "hello"),
		NewMessage(RoleUser, "[Bo] hey there"),
		structured,
	} {
		if err := store.Append(ctx, m); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	before := store.Messages()

	restarted, _ := newFileStore(t, dir, "Ava")
	if !restarted.LoadOrSeed(ctx, "a different persona") {
		t.Fatalf("expected restore from backup")
	}
	after := restarted.Messages()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("round trip mismatch\nbefore=%+v\nafter=%+v", before, after)
	}
}

func TestRestoredBackupIsTrustedVerbatim(t *testing.T) {
	dir := t.TempDir()
	store, backup := newFileStore(t, dir, "Ava")
	if err := os.WriteFile(backup.Path("Ava"), []byte(`[{"role":"user","content":"no persona here"}]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store.LoadOrSeed(context.Background(), "You are Ava.")
	msgs := store.Messages()
	if len(msgs) != 1 || msgs[0].Role != RoleUser {
		t.Fatalf("expected backup kept verbatim, got %+v", msgs)
	}

	empty, backup2 := newFileStore(t, t.TempDir(), "Bo")
	if err := os.WriteFile(backup2.Path("Bo"), []byte(`[]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !empty.LoadOrSeed(context.Background(), "You are Bo.") || empty.Len() != 0 {
		t.Fatalf("expected an empty backup to be trusted")
	}
}

func TestCorruptBackupIsTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	store, backup := newFileStore(t, dir, "Ava")
	if err := os.WriteFile(backup.Path("Ava"), []byte(`{not json`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if store.LoadOrSeed(context.Background(), "You are Ava.") {
		t.Fatalf("expected corrupt backup to be ignored")
	}
	if store.Len() != 1 {
		t.Fatalf("expected seeded persona, got %d entries", store.Len())
	}
}

type failingBackup struct{}

func (failingBackup) Load(context.Context, string) ([]Message, error) { return nil, ErrNoBackup }
func (failingBackup) Save(context.Context, string, []Message) error {
	return errors.New("disk full")
}

func TestAppendKeepsEntryWhenBackupFails(t *testing.T) {
	mem := metrics.NewMemoryObserver()
	store := NewStore("Ava", failingBackup{}, logging.Discard()).WithObserver(mem)
	store.LoadOrSeed(context.Background(), "persona")
	err := store.Append(context.Background(), NewMessage(RoleAssistant, "hello"))
	if !errorsx.HasReason(err, errorsx.ReasonBackupWrite) {
		t.Fatalf("expected backup write reason, got %v", err)
	}
	if mem.Count(metrics.EventBackupFailed) != 1 || mem.Count(metrics.EventTranscriptAppend) != 1 {
		t.Fatalf("expected append and backup failure metrics")
	}
	if store.Len() != 2 {
		t.Fatalf("expected in-memory append to stay, got %d entries", store.Len())
	}
}

func TestRenderNormalizesContentShapes(t *testing.T) {
	store := NewStore("Ava", nil, logging.Discard())
	store.LoadOrSeed(context.Background(), "persona")
	ctx := context.Background()
	_ = store.Append(ctx, Message{Role: RoleUser, Content: Structured(json.RawMessage(`[{"type":"image"},{"type":"text","text":"from parts"}]`))})
	_ = store.Append(ctx, Message{Role: RoleUser, Content: Structured(json.RawMessage(`{"content":"from object"}`))})
	_ = store.Append(ctx, Message{Role: RoleUser, Content: Structured(json.RawMessage(`{"other":1}`))})
	_ = store.Append(ctx, Message{Content: Text("no role")})

	got := store.Render()
	want := []llm.Message{
		{Role: "system", Content: "persona"},
		{Role: "user", Content: "from parts"},
		{Role: "user", Content: "from object"},
		{Role: "user", Content: `{"other":1}`},
		{Role: "user", Content: "no role"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected render\n got=%+v\nwant=%+v", got, want)
	}
}

func TestUtteranceViews(t *testing.T) {
	u := Utterance{Speaker: "A", Text: "hello", Role: RoleAssistant}
	if own := u.AsOwn(); own.Role != RoleAssistant || own.Content.String() != "hello" {
		t.Fatalf("unexpected own entry %+v", own)
	}
	if heard := u.AsHeard(); heard.Role != RoleUser || heard.Content.String() != "[A] hello" {
		t.Fatalf("unexpected heard entry %+v", heard)
	}
}
