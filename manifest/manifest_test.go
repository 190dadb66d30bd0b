package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "stack.toml"), []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[source]
include-dirs = ["lib", "/abs/include"]

[image]
output = "prog.img"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}

	if m.Image.Output != "prog.img" {
		t.Errorf("output = %q", m.Image.Output)
	}

	dirs := m.AbsIncludeDirs()
	if len(dirs) != 2 {
		t.Fatalf("include dirs = %v", dirs)
	}
	if dirs[0] != filepath.Join(m.Dir, "lib") {
		t.Errorf("relative dir = %q", dirs[0])
	}
	if dirs[1] != "/abs/include" {
		t.Errorf("absolute dir = %q", dirs[1])
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "")

	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if m.Image.Output != DefaultOutput {
		t.Errorf("output = %q, want %q", m.Image.Output, DefaultOutput)
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `[image]
output = "up.img"
`)

	nested := filepath.Join(root, "src", "deep")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatal(err)
	}
	if m == nil {
		t.Fatal("manifest not found")
	}
	if m.Image.Output != "up.img" {
		t.Errorf("output = %q", m.Image.Output)
	}
}

func TestFindAndLoadMissing(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Errorf("unexpected manifest: %+v", m)
	}
}

func TestLoadBadToml(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[[broken")

	if _, err := Load(dir); err == nil {
		t.Error("expected parse error")
	}
}
