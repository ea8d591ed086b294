package rimage

import (
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"github.com/xfmoulet/qoi"
	"go.viam.com/utils"
)

// ReadImageFromFile decodes any registered format (png, jpeg, gif, bmp, tiff, ppm, qoi).
func ReadImageFromFile(path string) (image.Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ppm", ".pgm":
		//nolint:gosec
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(f.Close)
		img, err := ppm.Decode(f)
		return img, errors.Wrapf(err, "decoding %q", path)
	case ".qoi":
		//nolint:gosec
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(f.Close)
		img, err := qoi.Decode(f)
		return img, errors.Wrapf(err, "decoding %q", path)
	default:
		img, err := imaging.Open(path)
		return img, errors.Wrapf(err, "decoding %q", path)
	}
}

// WriteImageToFile encodes img according to the file extension.
func WriteImageToFile(path string, img image.Image) (err error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".ppm" && ext != ".qoi" {
		return imaging.Save(img, path)
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	if ext == ".ppm" {
		return ppm.Encode(f, img)
	}
	return qoi.Encode(f, img)
}

// ResizeImage resamples img to width x height with a Lanczos filter.
func ResizeImage(img image.Image, width, height int) image.Image {
	return imaging.Resize(img, width, height, imaging.Lanczos)
}
