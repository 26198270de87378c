package rimage

import (
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// IsImageFile reports whether the file name has an extension ReadImageFile understands.
func IsImageFile(fn string) bool {
	switch strings.ToLower(filepath.Ext(fn)) {
	case ".ppm", ".png", ".jpg", ".jpeg":
		return true
	default:
		return false
	}
}

// ReadImageFile decodes a ppm, png or jpeg file.
func ReadImageFile(fn string) (image.Image, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var img image.Image
	switch strings.ToLower(filepath.Ext(fn)) {
	case ".ppm":
		img, err = ppm.Decode(f)
	default:
		img, _, err = image.Decode(f)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode %s", fn)
	}
	return img, nil
}

// WriteImageFile encodes img according to the file extension of fn.
func WriteImageFile(fn string, img image.Image) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()

	switch strings.ToLower(filepath.Ext(fn)) {
	case ".ppm":
		return ppm.Encode(f, img)
	case ".png":
		return png.Encode(f, img)
	case ".jpg", ".jpeg":
		return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	default:
		return errors.Errorf("do not know how to write %q", fn)
	}
}

// WriteFrameFile converts f and writes it with WriteImageFile.
func WriteFrameFile(fn string, f *Frame) error {
	img, err := ToImage(f)
	if err != nil {
		return err
	}
	return WriteImageFile(fn, img)
}
