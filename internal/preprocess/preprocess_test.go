package preprocess

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"malaria-scan/internal/diag"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestFromBytesShapeAndRange(t *testing.T) {
	for _, dim := range []int{32, 128, 500} {
		tensor, err := FromBytes(testPNG(t, dim, dim))
		if err != nil {
			t.Fatalf("dim %d: %v", dim, err)
		}
		if len(tensor.Data) != Size*Size*Channels {
			t.Fatalf("dim %d: got %d values, want %d", dim, len(tensor.Data), Size*Size*Channels)
		}
		for i, v := range tensor.Data {
			if v < 0 || v > 1 {
				t.Fatalf("dim %d: value %v at %d outside [0,1]", dim, v, i)
			}
		}
	}
}

func TestFromBytesDeterministic(t *testing.T) {
	raw := testPNG(t, 200, 150)
	a, err := FromBytes(raw)
	if err != nil {
		t.Fatal(err)
	}
	b, err := FromBytes(raw)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("resize not deterministic at %d", i)
		}
	}
}

func TestFromBase64(t *testing.T) {
	raw := testPNG(t, 64, 64)
	b64 := base64.StdEncoding.EncodeToString(raw)

	if _, err := FromBase64(b64); err != nil {
		t.Fatalf("bare base64: %v", err)
	}
	if _, err := FromBase64("data:image/png;base64," + b64); err != nil {
		t.Fatalf("data URL: %v", err)
	}
}

func TestFromBytesDecodeError(t *testing.T) {
	_, err := FromBytes([]byte("definitely not an image"))
	var de *diag.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestFromBase64DecodeError(t *testing.T) {
	_, err := FromBase64("!!bad!!")
	var de *diag.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError for bad base64, got %v", err)
	}
}

func TestAtIndexing(t *testing.T) {
	tensor, err := FromBytes(testPNG(t, Size, Size))
	if err != nil {
		t.Fatal(err)
	}
	// Blue channel was fixed at 128 everywhere in the fixture.
	got := tensor.At(10, 20, 2)
	want := float32(128*257) / 65535.0 // RGBA() scales 8-bit values by 257
	if got != want {
		t.Fatalf("At(10,20,2) = %v, want %v", got, want)
	}
}
