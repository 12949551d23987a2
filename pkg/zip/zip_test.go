package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchiveAssets(t *testing.T) {
	payload := bytes.Repeat([]byte("pixel"), 1000)
	data, err := ArchiveAssets("ADGenerator2.0-images", []Asset{
		{Filename: "image_1.png", Data: payload},
		{Filename: "image_3.jpg", Data: []byte("jpeg")},
	})
	if err != nil {
		t.Fatalf("ArchiveAssets returned error: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("entries = %d, want 2", len(zr.File))
	}
	first := zr.File[0]
	if first.Name != "ADGenerator2.0-images/image_1.png" {
		t.Fatalf("name = %q", first.Name)
	}
	if first.Method != zip.Deflate {
		t.Fatalf("method = %d, want deflate", first.Method)
	}
	if first.CompressedSize64 >= first.UncompressedSize64 {
		t.Fatalf("expected compression, got %d >= %d", first.CompressedSize64, first.UncompressedSize64)
	}
	rc, err := first.Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if !bytes.Equal(got, payload) {
		t.Fatal("payload mismatch")
	}
	if zr.File[1].Name != "ADGenerator2.0-images/image_3.jpg" {
		t.Fatalf("name = %q", zr.File[1].Name)
	}
}

func TestArchiveAssetsEmpty(t *testing.T) {
	data, err := ArchiveAssets("", nil)
	if err != nil {
		t.Fatalf("ArchiveAssets returned error: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if len(zr.File) != 0 {
		t.Fatalf("entries = %d, want 0", len(zr.File))
	}
}
