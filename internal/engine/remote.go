package engine

//go:generate mockgen -source=remote.go -destination=mock_remote.go -package=engine

import "context"

// RemoteEntry is one entry from a shallow remote directory listing.
// HasModTime is false when the listing did not carry a parsable time.
type RemoteEntry struct {
	Name       string
	Size       int64
	ModTime    int64
	HasModTime bool
	IsDir      bool
}

// RemoteFile is one file from a recursive remote listing. RelPath is
// relative to the listed root.
type RemoteFile struct {
	RelPath string
	Size    int64
	ModTime int64
}

// Remote is the transport capability the engine needs from the endpoint.
// Every call blocks; the implementation enforces its own timeouts and
// returns an error instead of hanging.
type Remote interface {
	Exists(ctx context.Context, path string) (bool, error)
	ListShallow(ctx context.Context, path string) ([]RemoteEntry, error)
	// ListRecursive returns every file under path. An empty result with a
	// nil error means recursive listing is unsupported on the endpoint.
	ListRecursive(ctx context.Context, path string) ([]RemoteFile, error)
	Stat(ctx context.Context, path string) (RemoteEntry, error)
	Push(ctx context.Context, local, remote string) error
	Pull(ctx context.Context, remote, local string) error
	// MakeDir creates path and its parents. An existing directory is not
	// an error.
	MakeDir(ctx context.Context, path string) error
}
