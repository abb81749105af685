// Package dataset holds the file-level plumbing shared by the pipeline stages:
// listing images, pairing images with label files by stem, copying, clearing
// output trees and writing the detector dataset description.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrDirNotFound reports a missing input directory.
var ErrDirNotFound = errors.New("directory not found")

// ImageExtensions are the image file extensions the pipeline reads.
var ImageExtensions = []string{".jpg", ".jpeg", ".png"}

// IsImage reports whether name has one of ImageExtensions (case-insensitive).
func IsImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// RequireDir returns ErrDirNotFound when dir does not exist or is not a directory.
func RequireDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrDirNotFound, dir)
		}
		return fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrDirNotFound, dir)
	}
	return nil
}

// ListFiles returns the names of regular files in dir accepted by keep,
// sorted lexically. Subdirectories are not descended.
func ListFiles(dir string, keep func(name string) bool) ([]string, error) {
	if err := RequireDir(dir); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if keep == nil || keep(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ListImages returns the image file names in dir, sorted.
func ListImages(dir string) ([]string, error) {
	return ListFiles(dir, IsImage)
}

// HasExt returns a ListFiles filter for a single extension.
func HasExt(ext string) func(string) bool {
	return func(name string) bool {
		return strings.EqualFold(filepath.Ext(name), ext)
	}
}

// Pair links an image with its label file through a shared stem.
type Pair struct {
	Stem  string
	Image string // absolute or dir-relative path to the image
	Label string // path to the label file
}

// PairByStem matches every image in imageDir with <labelDir>/<stem>.txt.
// Images without a label are returned in unmatched.
func PairByStem(imageDir, labelDir string) (pairs []Pair, unmatched []string, err error) {
	images, err := ListImages(imageDir)
	if err != nil {
		return nil, nil, err
	}
	if err := RequireDir(labelDir); err != nil {
		return nil, nil, err
	}

	for _, name := range images {
		stem := Stem(name)
		label := filepath.Join(labelDir, stem+".txt")
		if _, err := os.Stat(label); err != nil {
			unmatched = append(unmatched, name)
			continue
		}
		pairs = append(pairs, Pair{
			Stem:  stem,
			Image: filepath.Join(imageDir, name),
			Label: label,
		})
	}
	return pairs, unmatched, nil
}

// FindImage returns the first existing <dir>/<stem><ext> for ImageExtensions.
func FindImage(dir, stem string) (string, bool) {
	for _, ext := range ImageExtensions {
		p := filepath.Join(dir, stem+ext)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

// ClearDir removes everything inside dir and makes sure dir exists.
func ClearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// CopyFile copies src to dst, preserving the source file mode. Copying a
// file onto itself does nothing.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if dstInfo, err := os.Stat(dst); err == nil && os.SameFile(info, dstInfo) {
		return nil
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return nil
}
