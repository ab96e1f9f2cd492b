package workbench

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/autods/internal/apperr"
	"github.com/starford/autods/internal/catalog"
	"github.com/starford/autods/internal/snapshot"
	"github.com/starford/autods/internal/sse"
	"github.com/starford/autods/internal/testutil"
	"github.com/starford/autods/internal/transform"
)

type recorder struct {
	mu        sync.Mutex
	snapshots []string
	events    []sse.Event
}

func (r *recorder) Publish(e sse.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) PublishSnapshotEvent(kind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, kind+":"+id)
}

type fixture struct {
	svc   *Service
	store *snapshot.Store
	db    *catalog.DB
	rec   *recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := testutil.TestStore(t, time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local))
	db := testutil.TestCatalog(t)

	rec := &recorder{}
	svc := NewService(store, db, WithEvents(rec), WithLogger(testutil.Quiet()))
	return fixture{svc: svc, store: store, db: db, rec: rec}
}

const demoCSV = "A,B\n1,4\n2,\n3,6\n"

func TestImportSavesInitialVersion(t *testing.T) {
	fx := newFixture(t)
	sess := fx.svc.Sessions().Create()

	snap, err := fx.svc.Import(context.Background(), sess, "uploads/demo.csv", strings.NewReader(demoCSV))
	require.NoError(t, err)
	assert.Equal(t, "demo_v20240309_140507_initial", snap.ID)
	assert.Equal(t, 3, snap.Rows)

	active, err := fx.svc.Active(sess)
	require.NoError(t, err)
	assert.Equal(t, "demo", active.Name)
	assert.Equal(t, snap.ID, active.ID)

	lines := sess.ActionLines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "Imported dataset 'demo.csv' with shape (3, 2)")

	m, err := fx.db.Get(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.Checksum, m.Checksum)
	assert.Equal(t, []string{"created:" + snap.ID}, fx.rec.snapshots)
}

func TestImportRejectsEmptyCSV(t *testing.T) {
	fx := newFixture(t)
	sess := fx.svc.Sessions().Create()
	_, err := fx.svc.Import(context.Background(), sess, "empty.csv", strings.NewReader(""))
	require.ErrorIs(t, err, ErrInvalidUpload)
	ids, _ := fx.svc.List()
	assert.Empty(t, ids)
	assert.Empty(t, sess.Actions())
}

func TestApplyChainsVersions(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	sess := fx.svc.Sessions().Create()
	_, err := fx.svc.Import(ctx, sess, "demo.csv", strings.NewReader(demoCSV))
	require.NoError(t, err)

	snap, err := fx.svc.Apply(ctx, sess, "drop_missing_rows", transform.Params{})
	require.NoError(t, err)
	assert.Equal(t, "demo_v20240309_140508_drop_missing_rows", snap.ID)
	assert.Equal(t, 2, snap.Rows)

	snap, err = fx.svc.Apply(ctx, sess, "drop_columns", transform.Params{"columns": []string{"B"}})
	require.NoError(t, err)

	active, _ := fx.svc.Active(sess)
	assert.Equal(t, snap.ID, active.ID)
	assert.Equal(t, []string{"A"}, active.Frame.Names())

	lines := sess.ActionLines()
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "Dropped 1 rows with missing values")
	assert.Contains(t, lines[2], "Dropped columns: B")

	latest, err := fx.svc.Latest(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, latest.ID)

	ids, err := fx.svc.List()
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestApplyFailureChangesNothing(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	sess := fx.svc.Sessions().Create()

	_, err := fx.svc.Apply(ctx, sess, "drop_columns", transform.Params{"columns": "A"})
	assert.ErrorIs(t, err, ErrNoActiveDataset)

	first, err := fx.svc.Import(ctx, sess, "demo.csv", strings.NewReader(demoCSV))
	require.NoError(t, err)

	_, err = fx.svc.Apply(ctx, sess, "drop_columns", transform.Params{"columns": "missing"})
	var terr *transform.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "drop_columns", terr.Op)

	active, _ := fx.svc.Active(sess)
	assert.Equal(t, first.ID, active.ID)
	ids, _ := fx.svc.List()
	assert.Len(t, ids, 1)
	assert.Len(t, sess.Actions(), 1)
}

func TestApplyDropEveryColumnIsTransformError(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	sess := fx.svc.Sessions().Create()
	first, err := fx.svc.Import(ctx, sess, "demo.csv", strings.NewReader(demoCSV))
	require.NoError(t, err)

	_, err = fx.svc.Apply(ctx, sess, "drop_columns", transform.Params{"columns": []any{"A", "B"}})
	var terr *transform.Error
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, transform.ErrNoColumnsLeft)

	active, _ := fx.svc.Active(sess)
	assert.Equal(t, first.ID, active.ID)
	ids, _ := fx.svc.List()
	assert.Equal(t, []string{first.ID}, ids)
}

func TestApplySameOpTwiceInOneSecond(t *testing.T) {
	fixed := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)
	store, err := snapshot.Open(t.TempDir(), snapshot.WithClock(func() time.Time { return fixed }), snapshot.WithLogger(testutil.Quiet()))
	require.NoError(t, err)
	svc := NewService(store, testutil.TestCatalog(t), WithLogger(testutil.Quiet()))
	ctx := context.Background()
	sess := svc.Sessions().Create()

	_, err = svc.Import(ctx, sess, "demo.csv", strings.NewReader(demoCSV))
	require.NoError(t, err)
	first, err := svc.Apply(ctx, sess, "drop_duplicates", nil)
	require.NoError(t, err)
	second, err := svc.Apply(ctx, sess, "drop_duplicates", nil)
	require.NoError(t, err)

	assert.Equal(t, "demo_v20240309_140507_drop_duplicates", first.ID)
	assert.Equal(t, "demo_v20240309_140507_drop_duplicates_02", second.ID)
	active, _ := svc.Active(sess)
	assert.Equal(t, second.ID, active.ID)
}

func TestLoadActivatesSnapshot(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a := fx.svc.Sessions().Create()
	snap, err := fx.svc.Import(ctx, a, "sales.csv", strings.NewReader(demoCSV))
	require.NoError(t, err)

	b := fx.svc.Sessions().Create()
	e, err := fx.svc.Load(ctx, b, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, "sales", e.Name)
	assert.Equal(t, 3, e.Frame.NumRows())
	require.Len(t, fx.rec.events, 1)
	assert.Equal(t, sse.TypeDatasetActive, fx.rec.events[0].Type)

	_, err = fx.svc.Load(ctx, b, "nope_v20240101_000000_x")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSelectSwitchesDataset(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	sess := fx.svc.Sessions().Create()
	_, err := fx.svc.Import(ctx, sess, "a.csv", strings.NewReader(demoCSV))
	require.NoError(t, err)
	_, err = fx.svc.Import(ctx, sess, "b.csv", strings.NewReader(demoCSV))
	require.NoError(t, err)

	e, err := fx.svc.Select(sess, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", e.Name)
	active, _ := fx.svc.Active(sess)
	assert.Equal(t, "a", active.Name)

	_, err = fx.svc.Select(sess, "zzz")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteForgetsEverywhere(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a := fx.svc.Sessions().Create()
	b := fx.svc.Sessions().Create()
	snap, err := fx.svc.Import(ctx, a, "demo.csv", strings.NewReader(demoCSV))
	require.NoError(t, err)
	_, err = fx.svc.Load(ctx, b, snap.ID)
	require.NoError(t, err)

	assert.True(t, fx.svc.Delete(a, snap.ID))
	assert.False(t, fx.svc.Delete(a, snap.ID), "second delete is a no-op")

	_, err = fx.svc.Active(a)
	assert.ErrorIs(t, err, ErrNoActiveDataset)
	_, err = fx.svc.Active(b)
	assert.ErrorIs(t, err, ErrNoActiveDataset)
	_, err = fx.db.Get(snap.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Contains(t, fx.rec.snapshots, "deleted:"+snap.ID)
	assert.Contains(t, a.ActionLines()[1], "Deleted version "+snap.ID)
}

func TestMetaFallsBackToStore(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	sess := fx.svc.Sessions().Create()
	snap, err := fx.svc.Import(ctx, sess, "demo.csv", strings.NewReader(demoCSV))
	require.NoError(t, err)
	require.NoError(t, fx.db.Delete(snap.ID))

	m, err := fx.svc.Meta(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.Checksum, m.Checksum)
	_, err = fx.db.Get(snap.ID)
	assert.NoError(t, err, "Meta re-indexes a missing row")

	_, err = fx.svc.Latest(ctx, "other")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPreviewDescribeExport(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	sess := fx.svc.Sessions().Create()
	snap, err := fx.svc.Import(ctx, sess, "demo.csv", strings.NewReader(demoCSV))
	require.NoError(t, err)

	head, err := fx.svc.Preview(ctx, snap.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, head.NumRows())

	stats, err := fx.svc.Describe(ctx, snap.ID)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, 1, stats[1].Missing)

	var buf bytes.Buffer
	require.NoError(t, fx.svc.Export(ctx, snap.ID, &buf))
	assert.Equal(t, "A,B\n1,4\n2,\n3,6\n", buf.String())
}

func TestDatasetsAndSearch(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	sess := fx.svc.Sessions().Create()
	_, err := fx.svc.Import(ctx, sess, "demo.csv", strings.NewReader(demoCSV))
	require.NoError(t, err)
	_, err = fx.svc.Apply(ctx, sess, "drop_duplicates", nil)
	require.NoError(t, err)

	ds, err := fx.svc.Datasets()
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "demo", ds[0].Base)
	assert.Equal(t, 2, ds[0].Snapshots)

	hits, err := fx.svc.Search("duplicates", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "drop_duplicates", hits[0].Note)
}

func TestChatWithoutKeyRecordsWarning(t *testing.T) {
	fx := newFixture(t)
	sess := fx.svc.Sessions().Create()

	reply := fx.svc.Chat(context.Background(), sess, "what is this?")
	assert.NotEmpty(t, reply)
	turns := sess.Chat()
	require.Len(t, turns, 2)
	assert.Equal(t, "what is this?", turns[0].Content)
	assert.Equal(t, reply, turns[1].Content)
}

func TestInsightNeedsActiveDataset(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	sess := fx.svc.Sessions().Create()

	_, err := fx.svc.Insight(ctx, sess, "summarise")
	require.ErrorIs(t, err, ErrNoActiveDataset)

	_, err = fx.svc.Import(ctx, sess, "demo.csv", strings.NewReader(demoCSV))
	require.NoError(t, err)
	reply, err := fx.svc.Insight(ctx, sess, "summarise")
	require.NoError(t, err)
	assert.NotEmpty(t, reply)
	assert.Empty(t, sess.Chat())
}

func TestVersionsListsNewestFirst(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	sess := fx.svc.Sessions().Create()
	first, err := fx.svc.Import(ctx, sess, "demo.csv", strings.NewReader(demoCSV))
	require.NoError(t, err)
	second, err := fx.svc.Apply(ctx, sess, "drop_duplicates", nil)
	require.NoError(t, err)

	list, err := fx.svc.Versions("demo.csv")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestQueryUnknownSnapshot(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Query(context.Background(), "missing_v20240101_000000_x", "SELECT 1")
	require.Error(t, err)
}
