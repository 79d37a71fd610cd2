package cafe

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/absfs/absfs"
	"github.com/absfs/memfs"
)

// memDelegate is what the tests need from a memfs instance
type memDelegate interface {
	Delegate
	Open(string) (absfs.File, error)
	MkdirAll(string, os.FileMode) error
}

// mustNewMemFS creates a new memfs or panics
func mustNewMemFS() memDelegate {
	mfs, err := memfs.NewFS()
	if err != nil {
		panic(err)
	}
	return mfs
}

// readFile reads a file from a filesystem
func readFile(fs interface {
	Open(string) (absfs.File, error)
}, name string) ([]byte, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// writeFile writes data to a file in a filesystem
func writeFile(fs interface {
	OpenFile(string, int, os.FileMode) (absfs.File, error)
	MkdirAll(string, os.FileMode) error
}, name string, data []byte, perm os.FileMode) error {
	// Create parent directory if needed
	dir := name[:lastSlash(name)]
	if dir != "" && dir != "/" {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	f, err := fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// lastSlash finds the last slash in a path, or 0 if there is none
func lastSlash(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return i
		}
	}
	return 0
}

// writeCached places a file directly in the cache directory
func writeCached(t *testing.T, cacheRoot, name, data string) {
	t.Helper()
	p := filepath.Join(cacheRoot, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
}

// newTestFS returns a CacheFS over a fresh memfs delegate and an empty
// cache directory
func newTestFS(t *testing.T) (*CacheFS, memDelegate, string) {
	t.Helper()
	delegate := mustNewMemFS()
	cacheRoot := t.TempDir()
	return New(delegate, cacheRoot), delegate, cacheRoot
}

// recordingStore wraps a Store and records which cache paths were touched
type recordingStore struct {
	Store
	mu    sync.Mutex
	calls []string
}

func (r *recordingStore) record(op, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op+" "+name)
}

func (r *recordingStore) Stat(name string) (os.FileInfo, error) {
	r.record("stat", name)
	return r.Store.Stat(name)
}

func (r *recordingStore) Lstat(name string) (os.FileInfo, error) {
	r.record("lstat", name)
	return r.Store.Lstat(name)
}

func (r *recordingStore) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	r.record("open", name)
	return r.Store.OpenFile(name, flag, perm)
}

func (r *recordingStore) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// TestStatCacheHit tests that the cache answers attribute lookups
func TestStatCacheHit(t *testing.T) {
	cfs, delegate, cacheRoot := newTestFS(t)
	writeFile(delegate, "/a.txt", []byte("backing content"), 0644)
	writeCached(t, cacheRoot, "/a.txt", "cached")

	info, err := cfs.Stat("/a.txt")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != int64(len("cached")) {
		t.Errorf("expected cached size %d, got %d", len("cached"), info.Size())
	}
}

// TestStatCacheMiss tests fallback to the delegate
func TestStatCacheMiss(t *testing.T) {
	cfs, delegate, _ := newTestFS(t)
	writeFile(delegate, "/dir/b.txt", []byte("backing"), 0640)

	info, err := cfs.Stat("/dir/b.txt")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != int64(len("backing")) {
		t.Errorf("expected size %d, got %d", len("backing"), info.Size())
	}
}

// TestStatMissingEverywhere tests that only the delegate error is visible
func TestStatMissingEverywhere(t *testing.T) {
	cfs, _, _ := newTestFS(t)

	_, err := cfs.Stat("/nope")
	if !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

// TestStatCacheOnly tests that a file present only in the cache is visible
func TestStatCacheOnly(t *testing.T) {
	cfs, _, cacheRoot := newTestFS(t)
	writeCached(t, cacheRoot, "/only-cached", "x")

	if _, err := cfs.Stat("/only-cached"); err != nil {
		t.Errorf("expected cache hit, got %v", err)
	}
	if _, err := cfs.Lstat("/only-cached"); err != nil {
		t.Errorf("expected cache hit for Lstat, got %v", err)
	}
}

// TestCacheErrorsAreSilent tests that a cache that cannot be read at all
// does not leak its error
func TestCacheErrorsAreSilent(t *testing.T) {
	delegate := mustNewMemFS()
	writeFile(delegate, "/a.txt", []byte("backing"), 0644)

	// A regular file as the cache root makes every cache path ENOTDIR.
	cacheRoot := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(cacheRoot, nil, 0644); err != nil {
		t.Fatal(err)
	}
	cfs := New(delegate, cacheRoot)

	data, err := readFile(cfs, "/a.txt")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "backing" {
		t.Errorf("expected 'backing', got '%s'", data)
	}

	_, err = cfs.Stat("/missing")
	if !os.IsNotExist(err) {
		t.Errorf("expected the delegate's not-exist error, got %v", err)
	}
}

// TestOpenReadOnlyFromCache tests that read-only opens return cached content
func TestOpenReadOnlyFromCache(t *testing.T) {
	cfs, delegate, cacheRoot := newTestFS(t)
	writeFile(delegate, "/a.txt", []byte("backing"), 0644)
	writeCached(t, cacheRoot, "/a.txt", "cached")

	data, err := readFile(cfs, "/a.txt")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "cached" {
		t.Errorf("expected 'cached', got '%s'", data)
	}
}

// TestOpenReadOnlyFallback tests read-only opens of uncached files
func TestOpenReadOnlyFallback(t *testing.T) {
	cfs, delegate, _ := newTestFS(t)
	writeFile(delegate, "/a.txt", []byte("backing"), 0644)

	data, err := readFile(cfs, "/a.txt")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "backing" {
		t.Errorf("expected 'backing', got '%s'", data)
	}

	if _, err := cfs.Open("/missing"); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

// TestOpenCachedDirectoryIsMiss tests that directories are not opened
// from the cache
func TestOpenCachedDirectoryIsMiss(t *testing.T) {
	cfs, delegate, cacheRoot := newTestFS(t)
	writeFile(delegate, "/dir/backing.txt", []byte("x"), 0644)
	writeCached(t, cacheRoot, "/dir/cached.txt", "y")

	f, err := cfs.Open("/dir")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	infos, err := f.Readdir(-1)
	if err != nil {
		t.Fatalf("Readdir failed: %v", err)
	}
	names := make(map[string]bool)
	for _, info := range infos {
		names[info.Name()] = true
	}
	if !names["backing.txt"] || names["cached.txt"] {
		t.Errorf("expected the delegate listing, got %v", names)
	}
}

// TestWriteOpensBypassCache tests that every non-read-only open goes to
// the delegate without touching the cache
func TestWriteOpensBypassCache(t *testing.T) {
	flags := map[string]int{
		"O_WRONLY":          os.O_WRONLY,
		"O_RDWR":            os.O_RDWR,
		"O_WRONLY|O_CREATE": os.O_WRONLY | os.O_CREATE,
		"O_RDWR|O_TRUNC":    os.O_RDWR | os.O_TRUNC,
		"O_WRONLY|O_APPEND": os.O_WRONLY | os.O_APPEND,
		"O_RDONLY|O_CREATE": os.O_RDONLY | os.O_CREATE,
		"O_RDONLY|O_TRUNC":  os.O_RDONLY | os.O_TRUNC,
	}

	for name, flag := range flags {
		t.Run(name, func(t *testing.T) {
			delegate := mustNewMemFS()
			writeFile(delegate, "/a.txt", []byte("backing"), 0644)
			cacheRoot := t.TempDir()
			writeCached(t, cacheRoot, "/a.txt", "cached")
			store := &recordingStore{Store: OSStore{}}
			cfs := New(delegate, cacheRoot, WithStore(store))

			f, err := cfs.OpenFile("/a.txt", flag, 0644)
			if err != nil {
				t.Fatalf("OpenFile failed: %v", err)
			}
			f.Close()

			if n := store.count(); n != 0 {
				t.Errorf("cache consulted %d times: %v", n, store.calls)
			}
			cached, _ := os.ReadFile(filepath.Join(cacheRoot, "a.txt"))
			if string(cached) != "cached" {
				t.Errorf("cache file modified: %q", cached)
			}
		})
	}
}

// TestWriteThenReadStale tests that a cached copy stays authoritative after
// the delegate changes
func TestWriteThenReadStale(t *testing.T) {
	cfs, delegate, cacheRoot := newTestFS(t)
	writeFile(delegate, "/a.txt", []byte("v1"), 0644)
	writeCached(t, cacheRoot, "/a.txt", "v1")

	if err := writeFile(cfs.FileSystem(), "/a.txt", []byte("v2 is longer"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	backing, err := readFile(delegate, "/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(backing) != "v2 is longer" {
		t.Errorf("delegate has '%s', want 'v2 is longer'", backing)
	}

	data, err := readFile(cfs, "/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v1" {
		t.Errorf("expected stale cached 'v1', got '%s'", data)
	}

	info, err := cfs.Stat("/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 2 {
		t.Errorf("expected stale cached size 2, got %d", info.Size())
	}
}

// TestPassthroughOperations tests that mutations reach only the delegate
func TestPassthroughOperations(t *testing.T) {
	cfs, delegate, cacheRoot := newTestFS(t)
	writeFile(delegate, "/file", []byte("data"), 0644)
	writeCached(t, cacheRoot, "/file", "data")

	if err := cfs.Mkdir("/newdir", 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if _, err := delegate.Stat("/newdir"); err != nil {
		t.Errorf("Mkdir did not reach delegate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cacheRoot, "newdir")); !os.IsNotExist(err) {
		t.Errorf("Mkdir touched the cache")
	}

	if err := cfs.Chmod("/file", 0600); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	info, err := delegate.Stat("/file")
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected delegate mode 0600, got %v", info.Mode().Perm())
	}

	if err := cfs.Rename("/file", "/newdir/file"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if _, err := delegate.Stat("/newdir/file"); err != nil {
		t.Errorf("Rename did not reach delegate: %v", err)
	}

	if err := cfs.Remove("/newdir/file"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := delegate.Stat("/newdir/file"); !os.IsNotExist(err) {
		t.Errorf("Remove did not reach delegate: %v", err)
	}

	// The cached copy is untouched and still answers.
	if _, err := cfs.Stat("/file"); err != nil {
		t.Errorf("cached copy should still be visible: %v", err)
	}
}

// TestPassthroughErrors tests that delegate errors are returned unchanged
func TestPassthroughErrors(t *testing.T) {
	cfs, _, _ := newTestFS(t)

	if err := cfs.Remove("/missing"); !os.IsNotExist(err) {
		t.Errorf("Remove: expected not-exist, got %v", err)
	}
	if err := cfs.Rename("/missing", "/other"); !os.IsNotExist(err) {
		t.Errorf("Rename: expected not-exist, got %v", err)
	}
	if err := cfs.Chmod("/missing", 0644); !os.IsNotExist(err) {
		t.Errorf("Chmod: expected not-exist, got %v", err)
	}
}

// TestReadDirFromDelegate tests that listings never include cache-only names
func TestReadDirFromDelegate(t *testing.T) {
	cfs, delegate, cacheRoot := newTestFS(t)
	writeFile(delegate, "/d/one", []byte("1"), 0644)
	writeFile(delegate, "/d/two", []byte("2"), 0644)
	writeCached(t, cacheRoot, "/d/three", "3")

	entries, err := cfs.ReadDir("/d")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	names := make(map[string]bool)
	for _, entry := range entries {
		names[entry.Name()] = true
	}
	if !names["one"] || !names["two"] {
		t.Errorf("missing delegate entries: %v", names)
	}
	if names["three"] {
		t.Error("cache-only entry listed")
	}
}

// TestReadFileUsesCache tests the ReadFile convenience method
func TestReadFileUsesCache(t *testing.T) {
	cfs, delegate, cacheRoot := newTestFS(t)
	writeFile(delegate, "/a", []byte("backing"), 0644)
	writeCached(t, cacheRoot, "/a", "cached")

	data, err := cfs.ReadFile("/a")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "cached" {
		t.Errorf("expected 'cached', got '%s'", data)
	}
}

// TestSymlinkPassthrough tests symlink operations on the delegate
func TestSymlinkPassthrough(t *testing.T) {
	cfs, delegate, _ := newTestFS(t)
	writeFile(delegate, "/target", []byte("t"), 0644)

	if err := cfs.Symlink("/target", "/link"); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}
	target, err := cfs.Readlink("/link")
	if err != nil {
		t.Fatalf("Readlink failed: %v", err)
	}
	if target != "/target" {
		t.Errorf("expected '/target', got %q", target)
	}

	info, err := cfs.Lstat("/link")
	if err != nil {
		t.Fatalf("Lstat failed: %v", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Errorf("expected symlink mode, got %v", info.Mode())
	}
}

// TestLstatCachedSymlink tests that a cached symlink is reported as a link
func TestLstatCachedSymlink(t *testing.T) {
	cfs, _, cacheRoot := newTestFS(t)
	if err := os.Symlink("elsewhere", filepath.Join(cacheRoot, "link")); err != nil {
		t.Fatal(err)
	}

	info, err := cfs.Lstat("/link")
	if err != nil {
		t.Fatalf("Lstat failed: %v", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Errorf("expected symlink mode, got %v", info.Mode())
	}

	// Readlink is not cache-aware.
	if _, err := cfs.Readlink("/link"); err == nil {
		t.Error("expected Readlink of a cache-only link to fail")
	}
}

// TestBootstrapBeforeFirstRequest tests that files created by the
// population command are served on the very first request
func TestBootstrapBeforeFirstRequest(t *testing.T) {
	backingRoot := t.TempDir()
	cacheRoot := filepath.Join(t.TempDir(), "cache")
	if err := os.WriteFile(filepath.Join(backingRoot, "a.txt"), []byte("backing"), 0644); err != nil {
		t.Fatal(err)
	}

	result := Bootstrap{
		Command:     `populate() { mkdir -p "$2" && printf from-cache > "$2/a.txt"; }; populate`,
		BackingRoot: backingRoot,
		CacheRoot:   cacheRoot,
	}.Run(t.Context())
	if result.ExitCode != 0 {
		t.Fatalf("bootstrap failed: %+v", result)
	}

	delegate, err := NewOSDelegate(backingRoot)
	if err != nil {
		t.Fatal(err)
	}
	cfs := New(delegate, cacheRoot)

	data, err := readFile(cfs, "/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "from-cache" {
		t.Errorf("expected 'from-cache', got '%s'", data)
	}
	if stats := cfs.Stats(); stats.OpenHits != 1 {
		t.Errorf("expected 1 open hit, got %+v", stats)
	}
}

// TestConcurrentDispatch tests the dispatcher under parallel use
func TestConcurrentDispatch(t *testing.T) {
	cfs, delegate, cacheRoot := newTestFS(t)
	writeCached(t, cacheRoot, "/hot", "cached")
	writeFile(delegate, "/cold", []byte("backing"), 0644)

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := readFile(cfs, "/hot")
			if err != nil {
				errs <- err
				return
			}
			if string(data) != "cached" {
				errs <- errors.New("unexpected content for /hot: " + string(data))
			}
			if _, err := cfs.Stat("/cold"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	stats := cfs.Stats()
	if stats.OpenHits != 50 || stats.AttrMisses != 50 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

// TestAccessors tests the small informational methods
func TestAccessors(t *testing.T) {
	delegate := mustNewMemFS()
	cfs := New(delegate, "/var/cache/tree")

	if cfs.Name() != FsName {
		t.Errorf("Name() = %q, want %q", cfs.Name(), FsName)
	}
	if cfs.CacheRoot() != "/var/cache/tree" {
		t.Errorf("CacheRoot() = %q", cfs.CacheRoot())
	}
	if cfs.Delegate() != Delegate(delegate) {
		t.Error("Delegate() returned a different filesystem")
	}
	if got := cfs.CachePath("/a/b"); got != "/var/cache/tree//a/b" {
		t.Errorf("CachePath = %q", got)
	}
}
