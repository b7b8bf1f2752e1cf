// Package archive packs a directory tree into zip files of bounded size.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidMaxSize is returned for a non-positive size bound.
var ErrInvalidMaxSize = errors.New("max archive size must be positive")

// File is one regular file found under the scanned root.
type File struct {
	// Path on disk
	Path string
	// Name inside the archive, slash separated and relative to the root
	Name string
	Size int64
}

// Chunk is the set of files written to one archive.
type Chunk struct {
	Files []File
	Size  int64
}

// Oversized reports whether the chunk is a single file larger than max.
func (c Chunk) Oversized(max int64) bool {
	return len(c.Files) == 1 && c.Size > max
}

// Scan lists the regular files below root in lexical order. Hidden files
// and directories are skipped.
func Scan(root string) ([]File, error) {
	var files []File
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, File{Path: path, Name: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Plan groups files, in order, into chunks whose total uncompressed size
// stays within maxSize. A file larger than maxSize gets a chunk of its own.
func Plan(files []File, maxSize int64) ([]Chunk, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMaxSize, maxSize)
	}

	var chunks []Chunk
	var cur Chunk
	for _, f := range files {
		if len(cur.Files) > 0 && cur.Size+f.Size > maxSize {
			chunks = append(chunks, cur)
			cur = Chunk{}
		}
		cur.Files = append(cur.Files, f)
		cur.Size += f.Size
	}
	if len(cur.Files) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks, nil
}

// Name returns the file name of archive i (0-based) for prefix.
func Name(prefix string, i int) string {
	return fmt.Sprintf("%s-%d.zip", prefix, i+1)
}

// Write creates the zip at path holding chunk's files.
func Write(path string, chunk Chunk) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(out)
	for _, f := range chunk.Files {
		if err := addFile(zw, f); err != nil {
			zw.Close()
			return fmt.Errorf("add %s: %w", f.Name, err)
		}
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, f File) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = f.Name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}
