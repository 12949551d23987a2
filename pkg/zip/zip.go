// Package zip builds download archives of generated images.
package zip

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"path"
	"time"
)

type Asset struct {
	Filename string
	Data     []byte
	Modified time.Time
}

// WriteArchive writes assets into folder inside a zip stream using DEFLATE at
// best compression. An empty folder places entries at the root.
func WriteArchive(w io.Writer, folder string, assets []Asset) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	for _, asset := range assets {
		name := asset.Filename
		if folder != "" {
			name = path.Join(folder, asset.Filename)
		}
		header := &zip.FileHeader{Name: name, Method: zip.Deflate}
		if !asset.Modified.IsZero() {
			header.Modified = asset.Modified
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("zip entry %s: %w", name, err)
		}
		if _, err := fw.Write(asset.Data); err != nil {
			return fmt.Errorf("zip write %s: %w", name, err)
		}
	}
	return zw.Close()
}

// ArchiveAssets returns the archive built by WriteArchive.
func ArchiveAssets(folder string, assets []Asset) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := WriteArchive(buf, folder, assets); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
