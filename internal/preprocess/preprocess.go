// Package preprocess turns raw smear images into the fixed-shape tensor the
// classifier consumes.
package preprocess

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"

	"malaria-scan/internal/diag"
	"malaria-scan/internal/util"
)

// Tensor shape the model was trained with.
const (
	Size     = 128
	Channels = 3
)

// Tensor is a Size×Size×Channels image in HWC layout, channel values
// normalized to [0,1]. Owned by a single Predict call; never shared.
type Tensor struct {
	Data []float32
}

// At returns the value at row y, column x, channel c.
func (t *Tensor) At(y, x, c int) float32 {
	return t.Data[(y*Size+x)*Channels+c]
}

// FromBase64 decodes a bare or data-URL-prefixed base64 image and
// preprocesses it. A payload that is not valid base64 cannot be an image,
// so it fails the same way corrupt bytes do.
func FromBase64(s string) (*Tensor, error) {
	raw, _, err := util.DecodeBase64MaybeDataURL(s)
	if err != nil {
		return nil, &diag.DecodeError{Err: err}
	}
	return FromBytes(raw)
}

// FromBytes decodes raw image bytes, resizes to Size×Size and normalizes.
// The returned tensor shares no state with the input buffer.
func FromBytes(raw []byte) (*Tensor, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &diag.DecodeError{Err: err}
	}

	// Bilinear to match the training-time resize; a different filter
	// measurably shifts the classifier's output.
	resized := resize.Resize(Size, Size, img, resize.Bilinear)

	data := make([]float32, Size*Size*Channels)
	i := 0
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			r, g, b, _ := resized.At(x, y).RGBA() // alpha dropped
			data[i] = float32(r) / 65535.0
			data[i+1] = float32(g) / 65535.0
			data[i+2] = float32(b) / 65535.0
			i += 3
		}
	}
	return &Tensor{Data: data}, nil
}
