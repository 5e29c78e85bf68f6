package prebuilt

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func tarGzBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := io.WriteString(tw, body)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// tarGzHeaders writes hdrs in order. Regular entries take their body from
// bodies.
func tarGzHeaders(t *testing.T, hdrs []tar.Header, bodies map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, hdr := range hdrs {
		body := bodies[hdr.Name]
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(body))
		}
		require.NoError(t, tw.WriteHeader(&hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := io.WriteString(tw, body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func writeArchive(t *testing.T, name string, data []byte) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(src, data, 0o644))
	return src
}

func sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// artifactServer serves data at /<version>/<filename> and counts requests.
func artifactServer(t *testing.T, version, filename string, data []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/"+version+"/"+filename, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(data)
	})
	mux.HandleFunc("/moved/"+version+"/"+filename, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/"+version+"/"+filename, http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

type fixture struct {
	root    string
	tempDir string
	env     map[string]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		root:    t.TempDir(),
		tempDir: t.TempDir(),
		env:     map[string]string{},
	}
}

func (f *fixture) pipeline(opts Options) *Pipeline {
	opts.Root = f.root
	opts.TempDir = f.tempDir
	opts.LookupEnv = func(k string) (string, bool) {
		v, ok := f.env[k]
		return v, ok
	}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPipeline(opts)
}

func assertTempEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp files left behind")
}

func entryFor(baseURL, filename string, data []byte) Entry {
	return Entry{
		Name:               "libgodot",
		Filename:           filename,
		Version:            "4.4.1",
		BaseURL:            baseURL + "/",
		Shasum:             sum(data),
		DestinationBaseDir: "prebuilt",
		Env:                "LIBGODOT_LOCAL",
	}
}

func TestPipeline_DownloadsAndExtractsZip(t *testing.T) {
	data := zipBytes(t, map[string]string{
		"libgodot.xcframework/Info.plist": "plist",
		"libgodot.xcframework/ios/lib.a":  "lib",
	})
	srv, hits := artifactServer(t, "4.4.1", "libgodot.zip", data)
	f := newFixture(t)

	results, err := f.pipeline(Options{}).Run(context.Background(), []Entry{entryFor(srv.URL, "libgodot.zip", data)})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, ActionInstalled, results[0].Action)
	assert.Equal(t, SourceRemote, results[0].Source)
	assert.True(t, results[0].Verified)
	assert.Equal(t, int32(1), hits.Load())

	got, err := os.ReadFile(filepath.Join(f.root, "prebuilt", "libgodot", "4.4.1", "libgodot.xcframework", "ios", "lib.a"))
	require.NoError(t, err)
	assert.Equal(t, "lib", string(got))
	assertTempEmpty(t, f.tempDir)
}

func TestPipeline_ExtractsTarGz(t *testing.T) {
	data := tarGzBytes(t, map[string]string{"bin/godot": "elf"})
	srv, _ := artifactServer(t, "4.4.1", "godot.tar.gz", data)
	f := newFixture(t)

	_, err := f.pipeline(Options{}).Run(context.Background(), []Entry{entryFor(srv.URL, "godot.tar.gz", data)})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(f.root, "prebuilt", "libgodot", "4.4.1", "bin", "godot"))
	require.NoError(t, err)
	assert.Equal(t, "elf", string(got))
}

func TestPipeline_FollowsRedirects(t *testing.T) {
	data := zipBytes(t, map[string]string{"a.txt": "a"})
	srv, hits := artifactServer(t, "4.4.1", "libgodot.zip", data)
	f := newFixture(t)

	e := entryFor(srv.URL+"/moved", "libgodot.zip", data)
	_, err := f.pipeline(Options{}).Run(context.Background(), []Entry{e})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestPipeline_SkipsPopulatedTarget(t *testing.T) {
	data := zipBytes(t, map[string]string{"a.txt": "new"})
	srv, hits := artifactServer(t, "4.4.1", "libgodot.zip", data)
	f := newFixture(t)

	target := filepath.Join(f.root, "prebuilt", "libgodot", "4.4.1")
	require.NoError(t, os.MkdirAll(target, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "a.txt"), []byte("old"), 0o644))

	results, err := f.pipeline(Options{}).Run(context.Background(), []Entry{entryFor(srv.URL, "libgodot.zip", data)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ActionSkipped, results[0].Action)
	assert.Equal(t, int32(0), hits.Load(), "no network access expected")

	got, err := os.ReadFile(filepath.Join(target, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
}

func TestPipeline_ReplaceExisting(t *testing.T) {
	data := zipBytes(t, map[string]string{"a.txt": "new"})
	srv, hits := artifactServer(t, "4.4.1", "libgodot.zip", data)
	f := newFixture(t)

	target := filepath.Join(f.root, "prebuilt", "libgodot", "4.4.1")
	require.NoError(t, os.MkdirAll(target, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "stale.txt"), []byte("old"), 0o644))

	results, err := f.pipeline(Options{ReplaceExisting: true}).Run(context.Background(), []Entry{entryFor(srv.URL, "libgodot.zip", data)})
	require.NoError(t, err)
	assert.Equal(t, ActionInstalled, results[0].Action)
	assert.Equal(t, int32(1), hits.Load())

	_, err = os.Stat(filepath.Join(target, "stale.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	got, err := os.ReadFile(filepath.Join(target, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestPipeline_RemovesStaleVersions(t *testing.T) {
	data := zipBytes(t, map[string]string{"a.txt": "a"})
	srv, _ := artifactServer(t, "4.4.1", "libgodot.zip", data)
	f := newFixture(t)

	old := filepath.Join(f.root, "prebuilt", "libgodot", "4.3")
	require.NoError(t, os.MkdirAll(old, 0o755))

	_, err := f.pipeline(Options{}).Run(context.Background(), []Entry{entryFor(srv.URL, "libgodot.zip", data)})
	require.NoError(t, err)

	_, err = os.Stat(old)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPipeline_CorruptedArchive(t *testing.T) {
	data := []byte("this is not a zip file")
	srv, _ := artifactServer(t, "4.4.1", "libgodot.zip", data)
	f := newFixture(t)

	_, err := f.pipeline(Options{}).Run(context.Background(), []Entry{entryFor(srv.URL, "libgodot.zip", data)})
	assert.ErrorIs(t, err, ErrExtract)
	assertTempEmpty(t, f.tempDir)
}

func TestPipeline_ChecksumMismatch(t *testing.T) {
	data := zipBytes(t, map[string]string{"a.txt": "a"})
	srv, _ := artifactServer(t, "4.4.1", "libgodot.zip", data)
	f := newFixture(t)

	e := entryFor(srv.URL, "libgodot.zip", data)
	e.Shasum = strings.Repeat("0", 64)

	_, err := f.pipeline(Options{}).Run(context.Background(), []Entry{e})
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assertTempEmpty(t, f.tempDir)

	_, err = os.Stat(filepath.Join(f.root, "prebuilt", "libgodot", "4.4.1"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPipeline_ChecksumCaseInsensitive(t *testing.T) {
	data := zipBytes(t, map[string]string{"a.txt": "a"})
	srv, _ := artifactServer(t, "4.4.1", "libgodot.zip", data)
	f := newFixture(t)

	e := entryFor(srv.URL, "libgodot.zip", data)
	e.Shasum = strings.ToUpper(e.Shasum)

	_, err := f.pipeline(Options{}).Run(context.Background(), []Entry{e})
	require.NoError(t, err)
}

func TestPipeline_SkipChecksum(t *testing.T) {
	data := zipBytes(t, map[string]string{"a.txt": "a"})
	srv, _ := artifactServer(t, "4.4.1", "libgodot.zip", data)
	f := newFixture(t)

	e := entryFor(srv.URL, "libgodot.zip", data)
	e.Shasum = "wrong"

	results, err := f.pipeline(Options{SkipChecksum: true}).Run(context.Background(), []Entry{e})
	require.NoError(t, err)
	assert.False(t, results[0].Verified)
}

func TestPipeline_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	f := newFixture(t)

	_, err := f.pipeline(Options{}).Run(context.Background(), []Entry{entryFor(srv.URL, "libgodot.zip", nil)})
	assert.ErrorIs(t, err, ErrFetch)
	assertTempEmpty(t, f.tempDir)
}

// stallingServer sends part of a body and then goes quiet until the test ends.
func stallingServer(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	return srv
}

func TestPipeline_StalledDownloadFails(t *testing.T) {
	srv := stallingServer(t)
	f := newFixture(t)

	start := time.Now()
	_, err := f.pipeline(Options{StallTimeout: 100 * time.Millisecond}).
		Run(context.Background(), []Entry{entryFor(srv.URL, "libgodot.zip", nil)})
	assert.ErrorIs(t, err, ErrFetch)
	assert.ErrorIs(t, err, errStalled)
	assert.Less(t, time.Since(start), 5*time.Second)
	assertTempEmpty(t, f.tempDir)
}

func TestPipeline_CancelDuringDownload(t *testing.T) {
	srv := stallingServer(t)
	f := newFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := f.pipeline(Options{}).Run(ctx, []Entry{entryFor(srv.URL, "libgodot.zip", nil)})
	assert.ErrorIs(t, err, ErrFetch)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, errStalled)
}

func TestNewPipeline_DefaultClientHasTimeout(t *testing.T) {
	p := NewPipeline(Options{})
	assert.Equal(t, DefaultHTTPTimeout, p.client.Timeout)
	assert.Equal(t, DefaultStallTimeout, p.opts.StallTimeout)
}

func TestPipeline_LocalOverrideStillVerified(t *testing.T) {
	data := zipBytes(t, map[string]string{"a.txt": "local"})
	srv, hits := artifactServer(t, "4.4.1", "libgodot.zip", []byte("remote"))
	f := newFixture(t)

	local := filepath.Join(t.TempDir(), "local.zip")
	require.NoError(t, os.WriteFile(local, data, 0o644))
	f.env["LIBGODOT_LOCAL"] = local

	e := entryFor(srv.URL, "libgodot.zip", data)
	results, err := f.pipeline(Options{}).Run(context.Background(), []Entry{e})
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, results[0].Source)
	assert.True(t, results[0].Verified)
	assert.Equal(t, int32(0), hits.Load())

	got, err := os.ReadFile(filepath.Join(f.root, "prebuilt", "libgodot", "4.4.1", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "local", string(got))

	// A local archive with the wrong digest is rejected.
	e.Shasum = strings.Repeat("f", 64)
	_, err = f.pipeline(Options{ReplaceExisting: true}).Run(context.Background(), []Entry{e})
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assertTempEmpty(t, f.tempDir)
}

func TestPipeline_LocalOverrideMissing(t *testing.T) {
	f := newFixture(t)
	f.env["LIBGODOT_LOCAL"] = filepath.Join(t.TempDir(), "missing.zip")

	_, err := f.pipeline(Options{}).Run(context.Background(), []Entry{entryFor("http://127.0.0.1:1", "libgodot.zip", nil)})
	assert.ErrorIs(t, err, ErrLocalOverride)
	assertTempEmpty(t, f.tempDir)
}

func TestPipeline_EmptyOverrideFallsBackToFetch(t *testing.T) {
	data := zipBytes(t, map[string]string{"a.txt": "a"})
	srv, hits := artifactServer(t, "4.4.1", "libgodot.zip", data)
	f := newFixture(t)
	f.env["LIBGODOT_LOCAL"] = "  "

	results, err := f.pipeline(Options{}).Run(context.Background(), []Entry{entryFor(srv.URL, "libgodot.zip", data)})
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, results[0].Source)
	assert.Equal(t, int32(1), hits.Load())
}

func TestPipeline_NoUnpackCopiesFile(t *testing.T) {
	data := []byte("aar bytes")
	srv, _ := artifactServer(t, "4.4.1", "godot-lib.aar", data)
	f := newFixture(t)

	e := entryFor(srv.URL, "godot-lib.aar", data)
	e.NoUnpack = true

	_, err := f.pipeline(Options{}).Run(context.Background(), []Entry{e})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(f.root, "prebuilt", "libgodot", "4.4.1", "godot-lib.aar"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestPipeline_StopsAtFirstFailure(t *testing.T) {
	good := zipBytes(t, map[string]string{"a.txt": "a"})
	srv, _ := artifactServer(t, "4.4.1", "libgodot.zip", good)
	f := newFixture(t)

	first := entryFor(srv.URL, "libgodot.zip", good)
	second := first
	second.Name = "missing"
	second.Filename = "missing.zip"
	third := first
	third.Name = "never"

	results, err := f.pipeline(Options{}).Run(context.Background(), []Entry{first, second, third})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "process missing")
	assert.Len(t, results, 1)

	_, err = os.Stat(filepath.Join(f.root, "prebuilt", "never"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtract_RejectsTraversal(t *testing.T) {
	data := zipBytes(t, map[string]string{"../escape.txt": "x"})
	src := filepath.Join(t.TempDir(), "evil.zip")
	require.NoError(t, os.WriteFile(src, data, 0o644))

	dir := t.TempDir()
	err := extract(src, "evil.zip", dir)
	assert.ErrorIs(t, err, ErrUnsafePath)

	_, err = os.Stat(filepath.Join(filepath.Dir(dir), "escape.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtract_RejectsTarTraversal(t *testing.T) {
	data := tarGzBytes(t, map[string]string{"a/../../escape.txt": "x"})
	src := filepath.Join(t.TempDir(), "evil.tgz")
	require.NoError(t, os.WriteFile(src, data, 0o644))

	err := extract(src, "evil.tgz", t.TempDir())
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	err := extract("unused", "lib.rar", t.TempDir())
	assert.ErrorIs(t, err, ErrUnsupportedArchive)
}

func TestExtract_TarLinks(t *testing.T) {
	data := tarGzHeaders(t, []tar.Header{
		{Name: "lib/", Typeflag: tar.TypeDir, Mode: 0o755},
		{Name: "lib/libgodot.so.4", Typeflag: tar.TypeReg, Mode: 0o644},
		{Name: "lib/libgodot.so", Typeflag: tar.TypeSymlink, Linkname: "libgodot.so.4"},
		{Name: "lib/copy.so", Typeflag: tar.TypeLink, Linkname: "lib/libgodot.so.4"},
	}, map[string]string{"lib/libgodot.so.4": "engine"})
	src := writeArchive(t, "godot.tar.gz", data)

	dir := t.TempDir()
	require.NoError(t, extract(src, "godot.tar.gz", dir))

	link, err := os.Readlink(filepath.Join(dir, "lib", "libgodot.so"))
	require.NoError(t, err)
	assert.Equal(t, "libgodot.so.4", link)

	for _, name := range []string{"libgodot.so", "copy.so"} {
		got, err := os.ReadFile(filepath.Join(dir, "lib", name))
		require.NoError(t, err, name)
		assert.Equal(t, "engine", string(got), name)
	}
}

func TestExtract_RejectsEscapingTarLinks(t *testing.T) {
	tests := []struct {
		name string
		hdr  tar.Header
	}{
		{"relative symlink", tar.Header{Name: "lib/evil", Typeflag: tar.TypeSymlink, Linkname: "../../outside"}},
		{"absolute symlink", tar.Header{Name: "lib/evil", Typeflag: tar.TypeSymlink, Linkname: "/etc/passwd"}},
		{"hard link", tar.Header{Name: "lib/evil", Typeflag: tar.TypeLink, Linkname: "../outside"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := writeArchive(t, "evil.tgz", tarGzHeaders(t, []tar.Header{tt.hdr}, nil))

			dir := t.TempDir()
			err := extract(src, "evil.tgz", dir)
			assert.ErrorIs(t, err, ErrUnsafePath)

			_, err = os.Lstat(filepath.Join(dir, "lib", "evil"))
			assert.ErrorIs(t, err, os.ErrNotExist)
		})
	}
}

func TestExtract_RejectsTarDeviceNodes(t *testing.T) {
	src := writeArchive(t, "dev.tgz", tarGzHeaders(t, []tar.Header{
		{Name: "fifo", Typeflag: tar.TypeFifo, Mode: 0o644},
	}, nil))

	err := extract(src, "dev.tgz", t.TempDir())
	assert.ErrorIs(t, err, ErrUnsupportedArchive)
}

func TestExtract_AllowsDotsInNames(t *testing.T) {
	src := writeArchive(t, "dots.zip", zipBytes(t, map[string]string{
		"foo../bar":      "a",
		"lib/..hidden":   "b",
		"lib/x..y/z.txt": "c",
	}))

	dir := t.TempDir()
	require.NoError(t, extract(src, "dots.zip", dir))

	for name, want := range map[string]string{
		"foo../bar":      "a",
		"lib/..hidden":   "b",
		"lib/x..y/z.txt": "c",
	} {
		got, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
		require.NoError(t, err, name)
		assert.Equal(t, want, string(got), name)
	}
}

func TestSafeJoin(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		ok   bool
	}{
		{"a/b.txt", true},
		{"foo../bar", true},
		{"...", true},
		{"..", false},
		{"../x", false},
		{"a/../../x", false},
		{"a/../b", false},
		{"/etc/passwd", false},
	}
	for _, tt := range tests {
		_, err := safeJoin(dir, tt.name)
		if tt.ok {
			assert.NoError(t, err, tt.name)
		} else {
			assert.ErrorIs(t, err, ErrUnsafePath, tt.name)
		}
	}
}
