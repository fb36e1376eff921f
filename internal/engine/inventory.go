package engine

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// CollectLocal walks root and returns every regular file that passes the
// filter, keyed by normalized relative path. An unreadable root is fatal;
// unreadable subdirectories are logged and skipped.
func CollectLocal(ctx context.Context, root string, filter *Filter, logger *slog.Logger) (Inventory, error) {
	inv := make(Inventory)

	err := filepath.WalkDir(root, func(absPath string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			if absPath == root {
				return walkErr
			}

			logger.Warn("skipping unreadable path",
				slog.String("path", absPath),
				slog.String("error", walkErr.Error()),
			)

			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		// Symlinks and device nodes are never synced.
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, absPath)
		if err != nil {
			return err
		}

		rel = normalizePath(filepath.ToSlash(rel))
		if err := validRelPath(rel); err != nil {
			logger.Debug("skipping invalid local path", slog.String("path", absPath))
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logger.Warn("stat failed, skipping file",
				slog.String("path", absPath),
				slog.String("error", err.Error()),
			)

			return nil
		}

		rec := FileRecord{
			RelPath: rel,
			Size:    info.Size(),
			ModTime: info.ModTime().Unix(),
			Source:  absPath,
		}

		if filter.Allow(ctx, rec) {
			inv[rel] = rec
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	return inv, nil
}

// RemoteInventory is the result of collecting the remote side.
type RemoteInventory struct {
	Files Inventory
	// Degraded is true when recursive listing was unsupported and the
	// shallow fallback returned entries. Nested files are missing.
	Degraded bool
}

// CollectRemote lists root recursively and falls back to a shallow,
// single-level listing when the endpoint cannot list recursively. Any
// transport error is returned; the caller treats it as fatal.
func CollectRemote(ctx context.Context, remote Remote, root string, filter *Filter, logger *slog.Logger) (RemoteInventory, error) {
	files, err := remote.ListRecursive(ctx, root)
	if err != nil {
		return RemoteInventory{}, fmt.Errorf("recursive listing of %s: %w", root, err)
	}

	inv := make(Inventory)

	if len(files) > 0 {
		for _, f := range files {
			rel := normalizePath(f.RelPath)
			if err := validRelPath(rel); err != nil {
				logger.Debug("skipping invalid remote path", slog.String("path", f.RelPath))
				continue
			}

			rec := FileRecord{
				RelPath: rel,
				Size:    f.Size,
				ModTime: f.ModTime,
				Source:  remoteJoin(root, f.RelPath),
			}

			if filter.Allow(ctx, rec) {
				inv[rel] = rec
			}
		}

		return RemoteInventory{Files: inv}, nil
	}

	entries, err := remote.ListShallow(ctx, root)
	if err != nil {
		return RemoteInventory{}, fmt.Errorf("listing %s: %w", root, err)
	}

	if len(entries) == 0 {
		return RemoteInventory{Files: inv}, nil
	}

	logger.Warn("recursive remote listing unavailable, subdirectories are not synced",
		slog.String("remote", root),
		slog.Int("entries", len(entries)),
	)

	for _, e := range entries {
		if e.IsDir {
			continue
		}

		rel := normalizePath(e.Name)
		if err := validRelPath(rel); err != nil {
			continue
		}

		source := remoteJoin(root, e.Name)

		if !e.HasModTime {
			st, err := remote.Stat(ctx, source)
			if err != nil || !st.HasModTime {
				logger.Debug("no modification time, skipping remote file", slog.String("path", source))
				continue
			}

			e.ModTime = st.ModTime
			e.Size = st.Size
		}

		rec := FileRecord{
			RelPath: rel,
			Size:    e.Size,
			ModTime: e.ModTime,
			Source:  source,
		}

		if filter.Allow(ctx, rec) {
			inv[rel] = rec
		}
	}

	return RemoteInventory{Files: inv, Degraded: true}, nil
}

// localRootExists reports whether root is an existing directory.
func localRootExists(root string) bool {
	info, err := os.Stat(root)
	return err == nil && info.IsDir()
}
