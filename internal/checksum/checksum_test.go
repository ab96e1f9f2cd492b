package checksum

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSumKnownVector(t *testing.T) {
	got := Sum([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("Sum(abc) = %s, want %s", got, want)
	}
}

func TestFileMatchesSum(t *testing.T) {
	p := filepath.Join(t.TempDir(), "payload.bin")
	data := []byte("snapshot bytes")
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	sum, n, err := File(p)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if n != int64(len(data)) {
		t.Errorf("size = %d, want %d", n, len(data))
	}
	if sum != Sum(data) {
		t.Errorf("File digest %s != Sum digest %s", sum, Sum(data))
	}
}

func TestFileMissing(t *testing.T) {
	if _, _, err := File(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing file")
	}
}
