package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

var (
	ErrTooLarge     = errors.New("file too large")
	ErrInvalidImage = errors.New("invalid image")
	ErrUnsupported  = errors.New("unsupported image type")
)

type ImageOptions struct {
	MaxBytes    int64
	MaxDim      int
	JPEGQuality int
	// Transparent pixels are flattened onto this color.
	Background color.RGBA
}

func DefaultPhotoOptions() ImageOptions {
	return ImageOptions{
		MaxBytes:    20 * 1024 * 1024,
		MaxDim:      2048,
		JPEGQuality: 85,
		Background:  color.RGBA{R: 255, G: 255, B: 255, A: 255},
	}
}

// NormalizedImage is a photo ready for upload.
type NormalizedImage struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// DetectImageType sniffs jpeg, png and webp by magic number.
func DetectImageType(header []byte) (string, error) {
	if len(header) < 12 {
		return "", ErrInvalidImage
	}
	switch {
	case header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return "image/jpeg", nil
	case bytes.Equal(header[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png", nil
	case string(header[0:4]) == "RIFF" && string(header[8:12]) == "WEBP":
		return "image/webp", nil
	}
	return "", ErrUnsupported
}

// NormalizeImage decodes a photo, shrinks it to fit MaxDim without
// upscaling and re-encodes it as JPEG.
func NormalizeImage(r io.Reader, opts ImageOptions) (NormalizedImage, error) {
	def := DefaultPhotoOptions()
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = def.MaxBytes
	}
	if opts.MaxDim <= 0 {
		opts.MaxDim = def.MaxDim
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = def.JPEGQuality
	}
	if opts.Background.A == 0 {
		opts.Background = def.Background
	}

	data, err := io.ReadAll(io.LimitReader(r, opts.MaxBytes+1))
	if err != nil {
		return NormalizedImage{}, err
	}
	if int64(len(data)) > opts.MaxBytes {
		return NormalizedImage{}, ErrTooLarge
	}

	srcType, err := DetectImageType(data)
	if err != nil {
		return NormalizedImage{}, err
	}

	var img image.Image
	switch srcType {
	case "image/jpeg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	case "image/png":
		img, err = png.Decode(bytes.NewReader(data))
	case "image/webp":
		img, err = webp.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return NormalizedImage{}, fmt.Errorf("decode: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return NormalizedImage{}, ErrInvalidImage
	}
	tw, th := fitWithin(bounds.Dx(), bounds.Dy(), opts.MaxDim)

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: opts.JPEGQuality}); err != nil {
		return NormalizedImage{}, fmt.Errorf("encode: %w", err)
	}
	return NormalizedImage{Data: out.Bytes(), ContentType: "image/jpeg", Width: tw, Height: th}, nil
}

func fitWithin(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	var tw, th int
	if w >= h {
		tw = maxDim
		th = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		th = maxDim
		tw = int(float64(w) * float64(maxDim) / float64(h))
	}
	return max(tw, 1), max(th, 1)
}
