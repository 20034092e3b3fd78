package manifest

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, dir, name string, size int) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), bytes.Repeat([]byte{1}, size), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestScan_FiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.jpg", 2048)
	touch(t, dir, "b.png", 10240)
	touch(t, dir, "notes.txt", 10)

	entries, err := NewBuilder(nil).Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(entries), entries)
	}
	want := []Entry{
		{Filename: "a.jpg", SizeReadable: "2 KB", Type: "jpg"},
		{Filename: "b.png", SizeReadable: "10 KB", Type: "png"},
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entries[%d] = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestScan_CaseInsensitiveAndAllTypes(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"A.JPG", "b.Jpeg", "c.webp", "d.GIF", "e.png", "f.bmp", "jpg", "g.jpg.bak"} {
		touch(t, dir, name, 1)
	}
	if err := os.Mkdir(filepath.Join(dir, "folder.png"), 0755); err != nil {
		t.Fatal(err)
	}

	entries, err := NewBuilder(nil).Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	wantTypes := map[string]string{"A.JPG": "jpg", "b.Jpeg": "jpeg", "c.webp": "webp", "d.GIF": "gif", "e.png": "png"}
	if len(entries) != len(wantTypes) {
		t.Fatalf("got %+v, want %d entries", entries, len(wantTypes))
	}
	for _, e := range entries {
		if wantTypes[e.Filename] != e.Type {
			t.Errorf("%s type = %q, want %q", e.Filename, e.Type, wantTypes[e.Filename])
		}
	}
}

func TestScan_CustomExtensions(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.jpg", 1)
	touch(t, dir, "b.avif", 1)

	entries, err := NewBuilder([]string{".AVIF"}).Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(entries) != 1 || entries[0].Filename != "b.avif" {
		t.Errorf("entries = %+v, want only b.avif", entries)
	}
}

func TestScan_FollowsSymlinks(t *testing.T) {
	dir := t.TempDir()
	elsewhere := t.TempDir()
	touch(t, elsewhere, "target.jpg", 2048)
	touch(t, dir, "b.png", 10)
	if err := os.Symlink(filepath.Join(elsewhere, "target.jpg"), filepath.Join(dir, "linked.jpg")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Mkdir(filepath.Join(elsewhere, "album.png"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(elsewhere, "album.png"), filepath.Join(dir, "album.png")); err != nil {
		t.Fatal(err)
	}

	entries, err := NewBuilder(nil).Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []Entry{
		{Filename: "b.png", SizeReadable: "10 Bytes", Type: "png"},
		{Filename: "linked.jpg", SizeReadable: "2 KB", Type: "jpg"},
	}
	if len(entries) != len(want) {
		t.Fatalf("got %+v, want %+v", entries, want)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entries[%d] = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestScan_MissingDirectory(t *testing.T) {
	_, err := NewBuilder(nil).Scan(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, ErrDirectoryNotFound) {
		t.Fatalf("err = %v, want ErrDirectoryNotFound", err)
	}
}

func TestGenerate_ExactJSON(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.jpg", 2048)
	touch(t, dir, "b.png", 10240)
	touch(t, dir, "notes.txt", 3)
	path := filepath.Join(t.TempDir(), "images.json")

	if _, err := NewBuilder(nil).Generate(dir, path); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := `[{"filename":"a.jpg","sizeReadable":"2 KB","type":"jpg"},{"filename":"b.png","sizeReadable":"10 KB","type":"png"}]`
	if string(got) != want {
		t.Errorf("manifest =\n%s\nwant\n%s", got, want)
	}
}

func TestGenerate_Idempotent(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "z.png", 5000)
	touch(t, dir, "a.gif", 70000)
	touch(t, dir, "m.jpeg", 1)
	path := filepath.Join(t.TempDir(), "images.json")
	b := NewBuilder(nil)

	if _, err := b.Generate(dir, path); err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	first, _ := os.ReadFile(path)
	if _, err := b.Generate(dir, path); err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	second, _ := os.ReadFile(path)
	if !bytes.Equal(first, second) {
		t.Errorf("manifests differ:\n%s\n%s", first, second)
	}
}

func TestGenerate_EmptyDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.json")
	entries, err := NewBuilder(nil).Generate(t.TempDir(), path)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %+v", entries)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "[]" {
		t.Errorf("manifest = %q, want []", got)
	}
}

func TestWrite_MissingParentKeepsNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no", "such", "images.json")
	err := NewBuilder(nil).Write(path, []Entry{{Filename: "a.jpg", SizeReadable: "1 Bytes", Type: "jpg"}})
	if !errors.Is(err, ErrWriteFailure) {
		t.Fatalf("err = %v, want ErrWriteFailure", err)
	}
}

func TestWrite_FailureKeepsPreviousManifest(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "images.json")
	previous := []byte(`[{"filename":"old.jpg","sizeReadable":"1 KB","type":"jpg"}]`)
	if err := os.WriteFile(path, previous, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(dir, 0555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0755) })

	err := NewBuilder(nil).Write(path, []Entry{{Filename: "new.jpg", SizeReadable: "2 KB", Type: "jpg"}})
	if !errors.Is(err, ErrWriteFailure) {
		t.Fatalf("err = %v, want ErrWriteFailure", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, previous) {
		t.Errorf("manifest changed after a failed write: %s", got)
	}
}

func TestWrite_RenameFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "images.json")
	// a non-empty directory at the target makes the final rename fail
	if err := os.MkdirAll(filepath.Join(path, "keep"), 0755); err != nil {
		t.Fatal(err)
	}

	err := NewBuilder(nil).Write(path, []Entry{{Filename: "a.jpg", SizeReadable: "1 KB", Type: "jpg"}})
	if !errors.Is(err, ErrWriteFailure) {
		t.Fatalf("err = %v, want ErrWriteFailure", err)
	}
	if info, err := os.Stat(filepath.Join(path, "keep")); err != nil || !info.IsDir() {
		t.Errorf("existing target was modified: %v", err)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temporary files left: %v", leftovers)
	}
}

func TestWrite_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.json")
	if err := os.WriteFile(path, []byte("old and much longer content than the new manifest"), 0644); err != nil {
		t.Fatal(err)
	}
	entries := []Entry{{Filename: "a.jpg", SizeReadable: "1 KB", Type: "jpg"}}
	if err := NewBuilder(nil).Write(path, entries); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 1 || got[0] != entries[0] {
		t.Errorf("Read = %+v, want %+v", got, entries)
	}
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temporary files left: %v", leftovers)
	}
}

func TestEncode_Indent(t *testing.T) {
	b := NewBuilder(nil)
	b.Indent = "  "
	data, err := b.Encode([]Entry{{Filename: "a.jpg", SizeReadable: "2 KB", Type: "jpg"}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := "[\n  {\n    \"filename\": \"a.jpg\",\n    \"sizeReadable\": \"2 KB\",\n    \"type\": \"jpg\"\n  }\n]"
	if string(data) != want {
		t.Errorf("Encode =\n%s\nwant\n%s", data, want)
	}
}

func TestTypeOf(t *testing.T) {
	tests := map[string]string{
		"a.JPG":          "jpg",
		"archive.tar.gz": "gz",
		"noext":          "",
		"trailing.":      "",
	}
	for in, want := range tests {
		if got := TypeOf(in); got != want {
			t.Errorf("TypeOf(%q) = %q, want %q", in, got, want)
		}
	}
}
