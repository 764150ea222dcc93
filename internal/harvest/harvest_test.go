package harvest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/nir0k/SunLapse/internal/logging"
	"github.com/nir0k/SunLapse/internal/upload"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	photoDir string
	rawDir   string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	photoDir := t.TempDir()
	rawDir := filepath.Join(photoDir, "raw")
	require.NoError(t, os.Mkdir(rawDir, 0o755))
	return fixture{photoDir: photoDir, rawDir: rawDir}
}

func (f fixture) config(order Order) Config {
	return Config{Project: "garden", PhotoDir: f.photoDir, RawDir: f.rawDir, Order: order}
}

func (f fixture) drop(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.rawDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (f fixture) canonical(t *testing.T) map[string]string {
	t.Helper()
	entries, err := os.ReadDir(f.photoDir)
	require.NoError(t, err)
	out := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.photoDir, e.Name()))
		require.NoError(t, err)
		out[e.Name()] = string(data)
	}
	return out
}

type uploadCall struct {
	file    string
	project string
}

type recordingSink struct {
	calls []uploadCall
	fail  map[string]bool
}

func (s *recordingSink) Upload(_ context.Context, localPath, project string) error {
	name := filepath.Base(localPath)
	s.calls = append(s.calls, uploadCall{file: name, project: project})
	if s.fail[name] {
		return errors.New("connection reset")
	}
	return nil
}

func TestHarvestRenamesInLexicalOrder(t *testing.T) {
	f := newFixture(t)
	f.drop(t, "capt0002.jpg", "c")
	f.drop(t, "capt0000.jpg", "a")
	f.drop(t, "capt0001.jpg", "b")

	h := New(f.config(OrderName), nil, logging.Discard)
	next, err := h.Harvest(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, Counter(3), next)
	require.Equal(t, map[string]string{
		"img00000.jpg": "a",
		"img00001.jpg": "b",
		"img00002.jpg": "c",
	}, f.canonical(t))

	raw, err := os.ReadDir(f.rawDir)
	require.NoError(t, err)
	require.Empty(t, raw)

	next, err = h.Harvest(context.Background(), next)
	require.NoError(t, err)
	require.Equal(t, Counter(3), next)
	require.Len(t, f.canonical(t), 3)
}

func TestHarvestSequenceHasNoGaps(t *testing.T) {
	f := newFixture(t)
	h := New(f.config(OrderName), nil, logging.Discard)

	counter := Counter(7)
	batches := [][]string{{"x1", "x2"}, {}, {"y1"}, {"z1", "z2", "z3"}}
	for _, batch := range batches {
		for _, name := range batch {
			f.drop(t, name, name)
		}
		var err error
		counter, err = h.Harvest(context.Background(), counter)
		require.NoError(t, err)
	}
	require.Equal(t, Counter(13), counter)

	var names []string
	for name := range f.canonical(t) {
		names = append(names, name)
	}
	sort.Strings(names)
	require.Equal(t, []string{
		"img00007.jpg", "img00008.jpg", "img00009.jpg",
		"img00010.jpg", "img00011.jpg", "img00012.jpg",
	}, names)
}

func TestHarvestUploadFailureDoesNotBlockLaterFiles(t *testing.T) {
	f := newFixture(t)
	f.drop(t, "a.jpg", "a")
	f.drop(t, "b.jpg", "b")
	f.drop(t, "c.jpg", "c")

	sink := &recordingSink{fail: map[string]bool{"img00001.jpg": true}}
	rec := &logging.Recorder{}
	h := New(f.config(OrderName), sink, rec)

	next, err := h.Harvest(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, Counter(3), next)
	require.Equal(t, []uploadCall{
		{file: "img00000.jpg", project: "garden"},
		{file: "img00001.jpg", project: "garden"},
		{file: "img00002.jpg", project: "garden"},
	}, sink.calls)
	require.Len(t, f.canonical(t), 3)
	require.True(t, rec.Contains("Upload of img00001.jpg failed"))
}

func TestHarvestCompletesUploadsAfterCancel(t *testing.T) {
	f := newFixture(t)
	f.drop(t, "a.jpg", "a")
	f.drop(t, "b.jpg", "b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var seen []error
	sink := upload.SinkFunc(func(ctx context.Context, _, _ string) error {
		seen = append(seen, ctx.Err())
		return ctx.Err()
	})
	h := New(f.config(OrderName), sink, logging.Discard)

	next, err := h.Harvest(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, Counter(2), next)
	require.Equal(t, []error{nil, nil}, seen)
}

func TestHarvestRefusesToOverwrite(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.photoDir, "img00001.jpg"), []byte("old"), 0o644))
	f.drop(t, "a.jpg", "a")
	f.drop(t, "b.jpg", "b")

	h := New(f.config(OrderName), nil, logging.Discard)
	next, err := h.Harvest(context.Background(), 0)
	require.ErrorIs(t, err, ErrCollision)
	require.Equal(t, Counter(1), next)

	files := f.canonical(t)
	require.Equal(t, "a", files["img00000.jpg"])
	require.Equal(t, "old", files["img00001.jpg"])
	_, err = os.Stat(filepath.Join(f.rawDir, "b.jpg"))
	require.NoError(t, err, "unprocessed file stays in raw dir")
}

func TestHarvestOrdersByModTime(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"zz.jpg", "aa.jpg", "mm.jpg"} {
		path := f.drop(t, name, name)
		ts := base.Add(time.Duration(i) * time.Second)
		require.NoError(t, os.Chtimes(path, ts, ts))
	}

	h := New(f.config(OrderModTime), nil, logging.Discard)
	_, err := h.Harvest(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"img00000.jpg": "zz.jpg",
		"img00001.jpg": "aa.jpg",
		"img00002.jpg": "mm.jpg",
	}, f.canonical(t))
}

func TestHarvestOrdersByCaptureTimeWithFallback(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	captured := map[string]time.Time{
		"b.jpg": base.Add(2 * time.Second),
		"c.jpg": base,
	}
	noExif := f.drop(t, "a.jpg", "a")
	require.NoError(t, os.Chtimes(noExif, base.Add(time.Second), base.Add(time.Second)))
	f.drop(t, "b.jpg", "b")
	f.drop(t, "c.jpg", "c")

	rec := &logging.Recorder{}
	h := New(f.config(OrderCapture), nil, rec)
	h.captureTime = func(path string) (time.Time, error) {
		if ts, ok := captured[filepath.Base(path)]; ok {
			return ts, nil
		}
		return time.Time{}, errors.New("no exif")
	}

	_, err := h.Harvest(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"img00000.jpg": "c",
		"img00001.jpg": "a",
		"img00002.jpg": "b",
	}, f.canonical(t))
	require.True(t, rec.Contains("No capture time for a.jpg"))
}

func TestHarvestOrdersByEmbeddedExif(t *testing.T) {
	f := newFixture(t)
	early, err := os.ReadFile(filepath.Join("..", "media", "testdata", "dawn.jpg"))
	require.NoError(t, err)
	late, err := os.ReadFile(filepath.Join("..", "media", "testdata", "dawn_later.jpg"))
	require.NoError(t, err)

	// Names and mtimes both disagree with the embedded capture times.
	base := time.Date(2026, 6, 21, 6, 0, 0, 0, time.UTC)
	lateRaw := f.drop(t, "a.jpg", string(late))
	require.NoError(t, os.Chtimes(lateRaw, base, base))
	earlyRaw := f.drop(t, "b.jpg", string(early))
	require.NoError(t, os.Chtimes(earlyRaw, base.Add(time.Minute), base.Add(time.Minute)))

	rec := &logging.Recorder{}
	_, err = New(f.config(OrderCapture), nil, rec).Harvest(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"img00000.jpg": string(early),
		"img00001.jpg": string(late),
	}, f.canonical(t))
	require.False(t, rec.Contains("No capture time"))
}

func TestHarvestSkipsDirectories(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Mkdir(filepath.Join(f.rawDir, "sub"), 0o755))
	f.drop(t, "a.jpg", "a")

	h := New(f.config(OrderName), nil, logging.Discard)
	next, err := h.Harvest(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, Counter(1), next)
}

func TestHarvestWarnsOnceAboveFiveDigits(t *testing.T) {
	f := newFixture(t)
	f.drop(t, "a.jpg", "a")
	f.drop(t, "b.jpg", "b")

	rec := &logging.Recorder{}
	h := New(f.config(OrderName), nil, rec)
	next, err := h.Harvest(context.Background(), MaxIndex+1)
	require.NoError(t, err)
	require.Equal(t, Counter(MaxIndex+3), next)
	require.Contains(t, f.canonical(t), "img100001.jpg")

	warnings := 0
	for _, line := range rec.Lines() {
		if len(line) > 4 && line[:4] == "WARN" {
			warnings++
		}
	}
	require.Equal(t, 1, warnings)
}

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder("")
	require.NoError(t, err)
	require.Equal(t, OrderName, o)

	o, err = ParseOrder(" EXIF ")
	require.NoError(t, err)
	require.Equal(t, OrderCapture, o)

	_, err = ParseOrder("size")
	require.Error(t, err)
}

var _ upload.Sink = (*recordingSink)(nil)
