package imaging

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/braingenix/brainstream/rt/core"
)

// WritePNG encodes img to dir/name. A failure to create dir is only logged;
// the write that follows reports the real error.
func WritePNG(dir, name string, img image.Image, logger core.Logger) (string, error) {
	logger = core.OrNop(logger)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warnf("cannot create output directory %s: %v", dir, err)
	}

	full := filepath.Join(dir, name)
	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", full, err)
	}

	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("encode %s: %w", full, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", full, err)
	}
	return full, nil
}
