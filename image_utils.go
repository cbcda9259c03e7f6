package cococonv

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/copy"
)

// ImageOptions controls how source images are materialised in the output dataset. With the zero
// value, images are copied byte for byte.
type ImageOptions struct {
	ResizeLonger       int    // Target length of the longer side (0 keeps the aspect ratio).
	ResizeShorter      int    // Target length of the shorter side (0 keeps the aspect ratio).
	Encoding           string // "keep" (or empty), "jpg" or "png".
	JPEGQuality        int    // JPEG quality in [1, 100].
	DownsamplingFilter string // nearest, box, linear, gaussian or lanczos.
	UpsamplingFilter   string // nearest, box, linear, gaussian or lanczos.
}

// doResize reports whether images must be resized.
func (o ImageOptions) doResize() bool {
	return o.ResizeLonger > 0 || o.ResizeShorter > 0
}

// doReencode reports whether images must be decoded and encoded again instead of copied.
func (o ImageOptions) doReencode() bool {
	enc := strings.ToLower(o.Encoding)
	return o.doResize() || (enc != "" && enc != "keep")
}

// outputFileName returns the file name of the processed image for the source file name.
func (o ImageOptions) outputFileName(fileName string) (string, error) {
	switch strings.ToLower(o.Encoding) {
	case "", "keep":
		return fileName, nil
	case "jpg", "jpeg":
		return replaceExt(fileName, ".jpg"), nil
	case "png":
		return replaceExt(fileName, ".png"), nil
	}
	return "", fmt.Errorf("unsupported output encoding %q", o.Encoding)
}

// Symlinked source images are copied as the file they point to.
var copyOptions = copy.Options{
	OnSymlink: func(string) copy.SymlinkAction { return copy.Deep },
}

// imageProcessor copies or re-encodes images according to ImageOptions.
type imageProcessor struct {
	opts       ImageOptions
	downsample imaging.ResampleFilter
	upsample   imaging.ResampleFilter
}

func newImageProcessor(opts ImageOptions) (*imageProcessor, error) {
	opts.Encoding = strings.ToLower(opts.Encoding)
	p := &imageProcessor{opts: opts, downsample: imaging.Box, upsample: imaging.Linear}

	// Select the resampling algorithms.
	filters := []struct {
		name   string
		filter *imaging.ResampleFilter
	}{
		{opts.DownsamplingFilter, &p.downsample},
		{opts.UpsamplingFilter, &p.upsample},
	}
	for _, v := range filters {
		if v.name == "" {
			continue
		}
		f, err := parseResampleFilter(v.name)
		if err != nil {
			return nil, err
		}
		*v.filter = f
	}

	if _, err := opts.outputFileName("x"); err != nil {
		return nil, err
	}

	return p, nil
}

// parseResampleFilter maps a filter name to the imaging filter.
func parseResampleFilter(name string) (imaging.ResampleFilter, error) {
	switch name {
	case "nearest":
		return imaging.NearestNeighbor, nil
	case "box":
		return imaging.Box, nil
	case "linear":
		return imaging.Linear, nil
	case "gaussian":
		return imaging.Gaussian, nil
	case "lanczos":
		return imaging.Lanczos, nil
	}
	return imaging.ResampleFilter{}, fmt.Errorf("unknown resampling filter %q", name)
}

// process materialises the image at src as dst. Without resizing or re-encoding the file is copied
// unchanged.
func (p *imageProcessor) process(src, dst string) error {
	if !p.opts.doReencode() {
		if err := copy.Copy(src, dst, copyOptions); err != nil {
			return &IOError{Op: "copy", Path: src, Err: err}
		}
		return nil
	}

	img, err := imaging.Open(src)
	if err != nil {
		return &IOError{Op: "decode", Path: src, Err: err}
	}

	if p.opts.doResize() {
		img = resizeImage(img, p.opts.ResizeLonger, p.opts.ResizeShorter, p.downsample, p.upsample)
	}

	if err := imaging.Save(img, dst, imaging.JPEGQuality(p.opts.JPEGQuality)); err != nil {
		return &IOError{Op: "encode", Path: dst, Err: err}
	}
	return nil
}

// resizeImage resamples the image to match the longer and shorter sides (one may be 0, in which
// case the aspect ratio is kept).
func resizeImage(img image.Image, longerSide, shorterSide int,
	downsamplingFilter, upsamplingFilter imaging.ResampleFilter) image.Image {

	imgBounds := img.Bounds()
	imgWidth := imgBounds.Dx()
	imgHeight := imgBounds.Dy()

	imgLonger := imgWidth
	imgShorter := imgHeight
	isLandscape := true
	if imgHeight > imgWidth {
		imgLonger = imgHeight
		imgShorter = imgWidth
		isLandscape = false
	}

	// Calculate the target dimensions.
	if longerSide <= 0 {
		longerSide = int(math.Round(float64(shorterSide) * (float64(imgLonger) / float64(imgShorter))))
	} else if shorterSide <= 0 {
		shorterSide = int(math.Round(float64(longerSide) * (float64(imgShorter) / float64(imgLonger))))
	}

	// Select the filter based on the direction of the rescaling operation.
	filter := upsamplingFilter
	if longerSide*shorterSide < imgWidth*imgHeight {
		filter = downsamplingFilter
	}

	if isLandscape {
		return imaging.Resize(img, longerSide, shorterSide, filter)
	}
	return imaging.Resize(img, shorterSide, longerSide, filter)
}
