package neuroglancer

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// ChunkName is the file name of the chunk covering [x0,x1)×[y0,y1)×[z0,z1).
func ChunkName(x0, x1, y0, y1, z0, z1 int) string {
	return fmt.Sprintf("%d-%d_%d-%d_%d-%d", x0, x1, y0, y1, z0, z1)
}

// writeChunk stores raw chunk bytes gzip-compressed, to be served with
// Content-Encoding: gzip.
func writeChunk(dir, name string, raw []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return err
	}
	if _, err := zw.Write(raw); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644)
}

// ReadChunk returns the decompressed bytes of a chunk file.
func ReadChunk(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", path, err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
