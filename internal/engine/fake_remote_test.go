package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeFile struct {
	data  []byte
	mtime int64
}

// fakeRemote is an in-memory Remote. Push and Pull preserve mtimes the
// way adb push and adb pull -a do.
type fakeRemote struct {
	mu sync.Mutex

	files map[string]fakeFile
	dirs  map[string]bool

	// shallowOnly makes ListRecursive report "unsupported".
	shallowOnly bool
	failPush    map[string]bool
	listErr     error

	pushes []string
	pulls  []string
	mkdirs []string
}

func newFakeRemote(root string) *fakeRemote {
	return &fakeRemote{
		files:    make(map[string]fakeFile),
		dirs:     map[string]bool{root: true},
		failPush: make(map[string]bool),
	}
}

func (f *fakeRemote) put(p string, size int, mtime int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[p] = fakeFile{data: []byte(strings.Repeat("r", size)), mtime: mtime}
	f.dirs[path.Dir(p)] = true
}

func (f *fakeRemote) Exists(_ context.Context, p string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dirs[p] {
		return true, nil
	}

	_, ok := f.files[p]

	return ok, nil
}

func (f *fakeRemote) ListShallow(_ context.Context, root string) ([]RemoteEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}

	seenDirs := make(map[string]bool)

	var out []RemoteEntry

	prefix := strings.TrimSuffix(root, "/") + "/"
	for p, ff := range f.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}

		rest := strings.TrimPrefix(p, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			name := rest[:i]
			if !seenDirs[name] {
				seenDirs[name] = true
				out = append(out, RemoteEntry{Name: name, IsDir: true})
			}

			continue
		}

		// Minute resolution, like ls -la.
		out = append(out, RemoteEntry{
			Name:       rest,
			Size:       int64(len(ff.data)),
			ModTime:    ff.mtime - ff.mtime%60,
			HasModTime: true,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

func (f *fakeRemote) ListRecursive(_ context.Context, root string) ([]RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}

	if f.shallowOnly {
		return nil, nil
	}

	var out []RemoteFile

	prefix := strings.TrimSuffix(root, "/") + "/"
	for p, ff := range f.files {
		if strings.HasPrefix(p, prefix) {
			out = append(out, RemoteFile{
				RelPath: strings.TrimPrefix(p, prefix),
				Size:    int64(len(ff.data)),
				ModTime: ff.mtime,
			})
		}
	}

	return out, nil
}

func (f *fakeRemote) Stat(_ context.Context, p string) (RemoteEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ff, ok := f.files[p]
	if !ok {
		return RemoteEntry{}, fmt.Errorf("no such file: %s", p)
	}

	return RemoteEntry{Name: path.Base(p), Size: int64(len(ff.data)), ModTime: ff.mtime, HasModTime: true}, nil
}

func (f *fakeRemote) Push(_ context.Context, local, remote string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pushes = append(f.pushes, remote)

	if f.failPush[remote] {
		return fmt.Errorf("push %s: device offline", remote)
	}

	if !f.dirs[path.Dir(remote)] {
		return fmt.Errorf("push %s: parent directory missing", remote)
	}

	data, err := os.ReadFile(local)
	if err != nil {
		return err
	}

	info, err := os.Stat(local)
	if err != nil {
		return err
	}

	f.files[remote] = fakeFile{data: data, mtime: info.ModTime().Unix()}

	return nil
}

func (f *fakeRemote) Pull(_ context.Context, remote, local string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pulls = append(f.pulls, remote)

	ff, ok := f.files[remote]
	if !ok {
		return fmt.Errorf("pull %s: no such file", remote)
	}

	if err := os.WriteFile(local, ff.data, 0o644); err != nil {
		return err
	}

	mt := time.Unix(ff.mtime, 0)

	return os.Chtimes(local, mt, mt)
}

func (f *fakeRemote) MakeDir(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.mkdirs = append(f.mkdirs, p)

	for d := p; d != "/" && d != "." && !f.dirs[d]; d = path.Dir(d) {
		f.dirs[d] = true
	}

	return nil
}

// writeLocal creates root/rel with size bytes and the given mtime.
func writeLocal(t *testing.T, root, rel string, size int, mtime int64) {
	t.Helper()

	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(strings.Repeat("l", size)), 0o644))

	mt := time.Unix(mtime, 0)
	require.NoError(t, os.Chtimes(p, mt, mt))
}
