package engine

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizePath converts a relative path to the inventory join key:
// forward slashes, no leading or trailing slash, no repeated slashes,
// NFC normalized. Device filesystems and host filesystems disagree on
// Unicode normalization, so both sides go through this before keying.
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")

	var b strings.Builder

	prevSlash := false

	for _, r := range p {
		if r == '/' {
			if prevSlash {
				continue
			}

			prevSlash = true
		} else {
			prevSlash = false
		}

		b.WriteRune(r)
	}

	p = strings.Trim(b.String(), "/")

	return norm.NFC.String(p)
}

// validRelPath rejects empty paths and paths with "." or ".." segments.
func validRelPath(rel string) error {
	if rel == "" {
		return fmt.Errorf("empty relative path")
	}

	if strings.ContainsRune(rel, 0) {
		return fmt.Errorf("path contains null byte: %q", rel)
	}

	for _, seg := range strings.Split(rel, "/") {
		if seg == "." || seg == ".." {
			return fmt.Errorf("path contains %q segment: %q", seg, rel)
		}
	}

	return nil
}

// remoteJoin joins a remote root and a relative path with forward slashes.
func remoteJoin(root, rel string) string {
	if root == "" {
		return rel
	}

	return path.Join(root, rel)
}

// extension returns the lowercase extension of a relative path including
// the leading dot, or "" when there is none.
func extension(rel string) string {
	return strings.ToLower(path.Ext(rel))
}

// NormalizeExtension lowercases an extension and ensures a leading dot.
// An empty string stays empty.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}

	return "." + ext
}
