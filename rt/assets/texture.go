package assets

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"

	"golang.org/x/image/draw"
)

// TextureLevel describes one stored mip level of a texture.
type TextureLevel struct {
	ID     AssetID
	Width  int
	Height int
	// Bytes is the uncompressed RGBA size, what a resident copy costs.
	Bytes uint64
}

// ImportTexture decodes a PNG file and stores its mip chain. See
// StoreMipChain.
func ImportTexture(s Store, filename string) ([]TextureLevel, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	return StoreMipChain(s, img)
}

// StoreMipChain writes img and every half-size reduction down to 1×1 as
// PNG blobs. Levels are returned lowest resolution first, so index 0 is the
// cheapest level to keep resident.
func StoreMipChain(s Store, img image.Image) ([]TextureLevel, error) {
	var chain []TextureLevel
	cur := toRGBA(img)
	for {
		b := cur.Bounds()
		var buf bytes.Buffer
		if err := png.Encode(&buf, cur); err != nil {
			return nil, err
		}
		id := s.AllocateAssetID()
		if err := s.WriteAsset(id, buf.Bytes()); err != nil {
			return nil, err
		}
		chain = append(chain, TextureLevel{
			ID:     id,
			Width:  b.Dx(),
			Height: b.Dy(),
			Bytes:  uint64(len(cur.Pix)),
		})
		if b.Dx() <= 1 && b.Dy() <= 1 {
			break
		}
		next := image.NewRGBA(image.Rect(0, 0, max(1, b.Dx()/2), max(1, b.Dy()/2)))
		draw.ApproxBiLinear.Scale(next, next.Bounds(), cur, b, draw.Src, nil)
		cur = next
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// DecodeLevel reads a stored level back as an RGBA image.
func DecodeLevel(s Store, id AssetID) (*image.RGBA, error) {
	b, err := s.ReadAsset(id)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode level %s: %w", id, err)
	}
	return toRGBA(img), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
