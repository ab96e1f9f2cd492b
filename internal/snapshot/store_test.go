package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/starford/autods/internal/apperr"
	"github.com/starford/autods/internal/checksum"
	"github.com/starford/autods/internal/frame"
)

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	t := start.Add(-time.Second)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func tempStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "versions"), opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func demo() *frame.Frame {
	return frame.MustNew(frame.Int64s("A", 1, 2, 3), frame.Int64s("B", 4, 5, 6))
}

func TestOpenCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "versions")
	if _, err := Open(dir); err != nil {
		t.Fatalf("Open: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("dir not created: %v", err)
	}
}

func TestOpenFileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "autods-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	if _, err := Open(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	snap, err := s.Save(ctx, demo(), "demo.csv", "raw")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if snap.Base != "demo" || snap.Note != "raw" || snap.Rows != 3 || len(snap.Columns) != 2 {
		t.Errorf("meta = %+v", snap.SnapshotMeta)
	}
	if snap.Path != s.Path(snap.ID) {
		t.Errorf("path = %q, want %q", snap.Path, s.Path(snap.ID))
	}

	sum, size, err := checksum.File(snap.Path)
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}
	if sum != snap.Checksum || size != snap.Size {
		t.Errorf("checksum/size mismatch: %s/%d vs %s/%d", sum, size, snap.Checksum, snap.Size)
	}

	got, err := s.Load(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Equal(demo()) {
		t.Error("loaded frame differs from saved frame")
	}
}

func TestLoadMissing(t *testing.T) {
	s := tempStore(t)
	_, err := s.Load(context.Background(), "nope_v20240101_000000_raw")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveCollisionKeepsOriginal(t *testing.T) {
	fixed := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)
	s := tempStore(t, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	first, err := s.Save(ctx, demo(), "demo", "raw")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	other := frame.MustNew(frame.Strings("C", "x"))
	second, err := s.Save(ctx, other, "demo", "raw")
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if second.ID != "demo_v20240309_140507_raw_02" || second.Note != "raw_02" {
		t.Errorf("second = %q (note %q)", second.ID, second.Note)
	}
	third, err := s.Save(ctx, other, "demo", "raw")
	if err != nil {
		t.Fatalf("third Save: %v", err)
	}

	got, err := s.Load(ctx, first.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Equal(demo()) {
		t.Error("original snapshot was overwritten")
	}

	ids, _ := s.List()
	want := []string{third.ID, second.ID, first.ID}
	for i := range want {
		if i >= len(ids) || ids[i] != want[i] {
			t.Fatalf("List = %v, want %v", ids, want)
		}
	}
	if latest, _ := s.LatestVersion("demo"); latest != third.ID {
		t.Errorf("LatestVersion = %q, want %q", latest, third.ID)
	}
}

func TestSaveCollisionsExhausted(t *testing.T) {
	fixed := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)
	s := tempStore(t, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	for i := 0; i < maxCollisions; i++ {
		if _, err := s.Save(ctx, demo(), "demo", "raw"); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}
	if _, err := s.Save(ctx, demo(), "demo", "raw"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
	if matches, _ := filepath.Glob(filepath.Join(s.Root(), tmpPattern)); len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := tempStore(t, WithClock(stepClock(time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local))))
	ctx := context.Background()

	var ids []string
	for _, note := range []string{"a", "b", "c"} {
		snap, err := s.Save(ctx, demo(), "demo", note)
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		ids = append(ids, snap.ID)
	}
	// Stray files that are not snapshots are ignored.
	_ = os.WriteFile(filepath.Join(s.Root(), "notes.txt"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(s.Root(), ".autods-tmp-123"), []byte("x"), 0o644)

	got, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{ids[2], ids[1], ids[0]}
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLatestVersion(t *testing.T) {
	s := tempStore(t, WithClock(stepClock(time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local))))
	ctx := context.Background()

	if _, ok := s.LatestVersion("demo"); ok {
		t.Error("expected no version on empty store")
	}

	var last string
	for _, note := range []string{"t1", "t2", "t3"} {
		snap, err := s.Save(ctx, demo(), "demo", note)
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		last = snap.ID
	}
	// Later saves of other bases sharing the prefix must not win.
	if _, err := s.Save(ctx, demo(), "demo_clean", "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(ctx, demo(), "demo_v2", "x"); err != nil {
		t.Fatal(err)
	}

	got, ok := s.LatestVersion("demo.csv")
	if !ok || got != last {
		t.Errorf("LatestVersion = %q, %v; want %q", got, ok, last)
	}
	if got, ok := s.LatestVersion("demo_v2"); !ok || got == last {
		t.Errorf("LatestVersion(demo_v2) = %q, %v", got, ok)
	}
}

func TestLatestVersionNoteWithStamp(t *testing.T) {
	s := tempStore(t, WithClock(stepClock(time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local))))
	ctx := context.Background()

	if _, err := s.Save(ctx, demo(), "sales", "raw"); err != nil {
		t.Fatal(err)
	}
	// The note embeds a stamp of its own.
	snap, err := s.Save(ctx, demo(), "sales", "from_v20231231_235959_backup")
	if err != nil {
		t.Fatal(err)
	}
	got, ok := s.LatestVersion("sales")
	if !ok || got != snap.ID {
		t.Errorf("LatestVersion = %q, %v; want %q", got, ok, snap.ID)
	}
}

func TestDelete(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	if s.Delete("missing_v20240101_000000_x") {
		t.Error("Delete of missing id returned true")
	}

	snap, err := s.Save(ctx, demo(), "demo", "raw")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !s.Delete(snap.ID) {
		t.Fatal("Delete returned false")
	}
	ids, _ := s.List()
	if len(ids) != 0 {
		t.Errorf("List after delete = %v", ids)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	cases := []string{"", "..", "../outside", "a/b", `a\b`, "/etc/shadow"}
	for _, id := range cases {
		if _, err := s.Load(ctx, id); err == nil || errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Load(%q) err = %v, want invalid id", id, err)
		}
		if s.Delete(id) {
			t.Errorf("Delete(%q) returned true", id)
		}
		if s.Path(id) != "" {
			t.Errorf("Path(%q) = %q", id, s.Path(id))
		}
	}
	// A note containing a separator cannot escape the root either.
	if _, err := s.Save(ctx, demo(), "demo", "../../x"); err == nil {
		t.Error("expected Save with separator in note to fail")
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	s := tempStore(t)
	if _, err := s.Save(context.Background(), demo(), "demo", "raw"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(context.Background(), frame.MustNew(), "demo", "empty"); err == nil {
		t.Fatal("expected error saving a frame without columns")
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".autods-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestSaveHonoursCancelledContext(t *testing.T) {
	s := tempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Save(ctx, demo(), "demo", "raw"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestStat(t *testing.T) {
	at := time.Date(2024, 6, 1, 8, 30, 0, 0, time.Local)
	s := tempStore(t, WithClock(func() time.Time { return at }))
	ctx := context.Background()

	snap, err := s.Save(ctx, demo(), "demo", "raw")
	if err != nil {
		t.Fatal(err)
	}
	meta, err := s.Stat(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if meta.Base != "demo" || meta.Note != "raw" || !meta.CreatedAt.Equal(at) {
		t.Errorf("meta = %+v", meta)
	}
	if meta.Checksum != snap.Checksum || meta.Size != snap.Size || meta.Rows != 3 {
		t.Errorf("meta = %+v, saved = %+v", meta, snap.SnapshotMeta)
	}

	if _, err := s.Stat(ctx, "gone_v20240101_000000_x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Stat missing err = %v", err)
	}
}

func TestDemoScenario(t *testing.T) {
	s := tempStore(t, WithClock(stepClock(time.Now())))
	ctx := context.Background()

	raw, err := s.Save(ctx, demo(), "demo", "raw")
	if err != nil {
		t.Fatal(err)
	}
	if !regexp.MustCompile(`^demo_v\d{8}_\d{6}_raw$`).MatchString(raw.ID) {
		t.Errorf("id %q does not match pattern", raw.ID)
	}

	loaded, err := s.Load(ctx, raw.ID)
	if err != nil {
		t.Fatal(err)
	}
	if r, c := loaded.Shape(); r != 3 || c != 2 {
		t.Errorf("shape = (%d, %d)", r, c)
	}

	dropped, err := loaded.Drop("B")
	if err != nil {
		t.Fatal(err)
	}
	clean, err := s.Save(ctx, dropped, "demo", "clean")
	if err != nil {
		t.Fatal(err)
	}
	if clean.ID <= raw.ID {
		t.Errorf("%q does not sort after %q", clean.ID, raw.ID)
	}

	again, err := s.Load(ctx, raw.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.NumCols() != 2 {
		t.Errorf("original snapshot now has %d columns", again.NumCols())
	}
}
