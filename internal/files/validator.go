package files

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/roomdrop/roomdrop/internal/utils"
)

// FileInfo holds information about a file to be sent
type FileInfo struct {
	// Path is the absolute path to the file
	Path string

	// Name is the filename (without directory)
	Name string

	// Size is the file size in bytes
	Size int64

	// Type is the MIME type of the file (e.g., "application/pdf", "text/plain")
	Type string

	// IsDir is set for directories, which are sent as a zip archive.
	IsDir bool
}

// ValidateFile checks that path exists and is readable and describes it.
func ValidateFile(path string) (FileInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%s: file does not exist", path)
		}
		return FileInfo{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}

	if stat.IsDir() {
		return FileInfo{
			Path:  absPath,
			Name:  filepath.Base(absPath) + ".zip",
			Type:  "application/zip",
			IsDir: true,
		}, nil
	}

	if !stat.Mode().IsRegular() {
		return FileInfo{}, fmt.Errorf("%s: not a regular file", path)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	file.Close()

	mimeType := mime.TypeByExtension(filepath.Ext(absPath))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return FileInfo{
		Path: absPath,
		Name: filepath.Base(absPath),
		Size: stat.Size(),
		Type: mimeType,
	}, nil
}

// Source is an opened file ready to stream.
type Source struct {
	Info FileInfo
	File *os.File

	cleanup func()
}

// Open opens a validated file. Directories are zipped into a temporary
// archive first; Close removes it.
func Open(info FileInfo) (*Source, error) {
	src := &Source{Info: info}
	path := info.Path

	if info.IsDir {
		tmpDir, err := os.MkdirTemp("", "roomdrop-*")
		if err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
		src.cleanup = func() { os.RemoveAll(tmpDir) }

		path = filepath.Join(tmpDir, info.Name)
		if err := utils.ZipDirectory(info.Path, path); err != nil {
			src.cleanup()
			return nil, fmt.Errorf("%s: zip directory: %w", info.Path, err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("%s: open: %w", info.Path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		src.Close()
		return nil, fmt.Errorf("%s: stat: %w", info.Path, err)
	}

	src.File = f
	src.Info.Size = stat.Size()
	return src, nil
}

// Close releases the file and any temporary archive.
func (s *Source) Close() error {
	var err error
	if s.File != nil {
		err = s.File.Close()
	}
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
	return err
}
