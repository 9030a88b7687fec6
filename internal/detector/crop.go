package detector

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"gate-service/internal/domain/anpr"
)

var (
	ErrCropEmpty    = errors.New("crop is empty")
	ErrCropTooLarge = errors.New("crop exceeds maximum dimension")
)

type CropOptions struct {
	// MaxDim bounds both sides of the crop after upscaling.
	MaxDim  int
	Upscale int
	Enhance bool
}

func DefaultCropOptions() CropOptions {
	return CropOptions{MaxDim: 500, Upscale: 2, Enhance: true}
}

// PrepareCrop cuts box out of frame, upscales it and optionally boosts
// contrast and sharpness for recognition. Crops that would exceed MaxDim after
// upscaling are rejected so the caller can retry once the plate shrinks.
func PrepareCrop(frame image.Image, box anpr.Box, opts CropOptions) (image.Image, error) {
	if frame == nil {
		return nil, ErrCropEmpty
	}
	rect := image.Rect(int(box.X1), int(box.Y1), int(box.X2), int(box.Y2)).Intersect(frame.Bounds())
	if rect.Empty() {
		return nil, ErrCropEmpty
	}

	scale := opts.Upscale
	if scale < 1 {
		scale = 1
	}
	w, h := rect.Dx()*scale, rect.Dy()*scale
	if opts.MaxDim > 0 && (w > opts.MaxDim || h > opts.MaxDim) {
		return nil, fmt.Errorf("%w: %dx%d > %d", ErrCropTooLarge, w, h, opts.MaxDim)
	}

	crop := imaging.Crop(frame, rect)
	if scale > 1 {
		crop = imaging.Resize(crop, w, h, imaging.CatmullRom)
	}
	if opts.Enhance {
		crop = imaging.AdjustContrast(crop, 20)
		crop = imaging.Sharpen(crop, 1.0)
	}
	return crop, nil
}
