package files

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	os.WriteFile(path, []byte("hello"), 0o644)

	info, err := ValidateFile(path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if info.Name != "notes.txt" || info.Size != 5 || info.IsDir {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.Type != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected type %q", info.Type)
	}

	if _, err := ValidateFile(filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestValidateEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	os.WriteFile(path, nil, 0o644)

	info, err := ValidateFile(path)
	if err != nil {
		t.Fatalf("empty files are sendable: %v", err)
	}
	if info.Size != 0 || info.Type != "application/octet-stream" {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestOpenRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	os.WriteFile(path, []byte("0123456789"), 0o644)

	info, _ := ValidateFile(path)
	src, err := Open(info)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	buf := make([]byte, 4)
	if _, err := src.File.ReadAt(buf, 3); err != nil && err != io.EOF {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "3456" {
		t.Fatalf("unexpected content %q", buf)
	}
}

func TestOpenDirectoryZipsIt(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "album")
	os.MkdirAll(dir, 0o755)
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644)

	info, err := ValidateFile(dir)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !info.IsDir || info.Name != "album.zip" {
		t.Fatalf("unexpected info %+v", info)
	}

	src, err := Open(info)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if src.Info.Size == 0 {
		t.Fatalf("archive size must be known after open")
	}
	archive := src.File.Name()
	src.Close()

	if _, err := os.Stat(archive); !os.IsNotExist(err) {
		t.Fatalf("temporary archive must be removed on close")
	}
}
