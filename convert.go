package cococonv

// The COCO to Darknet dataset conversion.

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// Names of the files and directories created under the output root.
const (
	NamesFileName    = "category.names"
	DataFileName     = "obj.data"
	LabelMapFileName = "label_map.pbtxt"
	TrainSplit       = "train"
	ValSplit         = "val"
)

// DefaultRatio is the default fraction of images assigned to the training set.
const DefaultRatio = 0.9

// Config configures a conversion.
type Config struct {
	ManifestPath string  // The COCO annotation file.
	OutputDir    string  // The output root; must not exist.
	ImageDir     string  // The source images; defaults to the images dir next to the manifest's dir.
	Ratio        float64 // The training set fraction in (0, 1).

	// Rand shuffles the images before splitting. A clock seeded source is used if nil.
	Rand *rand.Rand

	WriteDataFile bool // Also write a Darknet obj.data file.
	TFRecord      bool // Also write TFRecord files for both splits.
	NumShards     int  // The number of TFRecord shards per split.

	Images ImageOptions
}

// validate checks the configuration and fills in defaults.
func (c *Config) validate() error {
	if c.ManifestPath == "" {
		return errors.New("missing manifest path")
	}
	if c.OutputDir == "" {
		return errors.New("missing output directory")
	}
	if c.Ratio <= 0 || c.Ratio >= 1 {
		return fmt.Errorf("invalid ratio %v, must be in (0, 1)", c.Ratio)
	}
	if c.Images.ResizeLonger < 0 || c.Images.ResizeShorter < 0 {
		return errors.New("invalid image resize length")
	}
	if c.NumShards <= 0 {
		c.NumShards = 1
	}
	if c.Images.JPEGQuality < 1 || c.Images.JPEGQuality > 100 {
		if c.Images.JPEGQuality != 0 {
			log.Warn("Invalid JPEG quality, using the default", "quality", c.Images.JPEGQuality)
		}
		c.Images.JPEGQuality = 92
	}

	if c.ImageDir == "" {
		c.ImageDir = DefaultImageDir(c.ManifestPath)
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return nil
}

// DefaultImageDir returns the directory "images" next to the directory holding the manifest,
// i.e. <manifest>/../../images.
func DefaultImageDir(manifestPath string) string {
	return filepath.Join(filepath.Dir(filepath.Dir(manifestPath)), "images")
}

// Report summarises a finished conversion.
type Report struct {
	Valid   int      // Images with an existing source file.
	Missing int      // Images skipped for lack of a source file.
	Train   []string // Output image paths in the training set, in list order.
	Val     []string // Output image paths in the validation set, in list order.
	Labels  int      // The number of labels written.
}

// Converter converts a COCO dataset to a Darknet dataset with training and validation splits.
type Converter struct {
	cfg    Config
	images *imageProcessor
}

// NewConverter validates cfg and returns a Converter for it.
func NewConverter(cfg Config) (*Converter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	images, err := newImageProcessor(cfg.Images)
	if err != nil {
		return nil, err
	}

	return &Converter{cfg: cfg, images: images}, nil
}

// Run performs the conversion.
//
// It fails with ErrOutputExists before anything is written if the output root exists. Any later
// failure leaves a partially written output directory behind.
func (c *Converter) Run() (*Report, error) {
	root := c.cfg.OutputDir
	if _, err := os.Lstat(root); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrOutputExists, root)
	} else if !os.IsNotExist(err) {
		return nil, &IOError{Op: "stat", Path: root, Err: err}
	}

	manifest, err := LoadCOCO(c.cfg.ManifestPath)
	if err != nil {
		return nil, err
	}

	valid, missing := c.validImages(manifest.Images)
	report := &Report{Valid: len(valid), Missing: missing}
	log.Printf("Found %d valid images", len(valid))
	if missing > 0 {
		log.Warnf("Skipped %d images without a source file in %s", missing, c.cfg.ImageDir)
	}

	train, val := Split(valid, c.cfg.Ratio, c.cfg.Rand)

	// Create the output tree.
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, &IOError{Op: "create", Path: root, Err: err}
	}
	for _, split := range []string{TrainSplit, ValSplit} {
		dir := filepath.Join(root, split)
		if err := os.Mkdir(dir, 0755); err != nil {
			return nil, &IOError{Op: "create", Path: dir, Err: err}
		}
	}

	namesPath := filepath.Join(root, NamesFileName)
	if err := WriteDarknetNames(namesPath, manifest.ClassNames()); err != nil {
		return nil, err
	}

	splits := []struct {
		name   string
		images []COCOImage
		paths  *[]string
	}{
		{TrainSplit, train, &report.Train},
		{ValSplit, val, &report.Val},
	}
	for _, s := range splits {
		paths, numLabels, err := c.writeSplit(manifest, s.name, s.images)
		if err != nil {
			return nil, fmt.Errorf("failed to write the %s split: %w", s.name, err)
		}
		*s.paths = paths
		report.Labels += numLabels
		log.Printf("Successfully wrote %d labels for %d images to %s",
			numLabels, len(paths), filepath.Join(root, s.name))
	}

	if c.cfg.WriteDataFile {
		err := WriteDarknetData(filepath.Join(root, DataFileName), len(manifest.Categories),
			listPath(root, TrainSplit), listPath(root, ValSplit), namesPath,
			filepath.Join(root, "backup"))
		if err != nil {
			return nil, err
		}
	}

	if c.cfg.TFRecord {
		labelMap := NewTFRecordLabelMap(manifest.ClassNames())
		if err := labelMap.Save(filepath.Join(root, LabelMapFileName)); err != nil {
			return nil, err
		}
		for _, s := range splits {
			recordPath := filepath.Join(root, s.name+".record")
			err := WriteTFRecord(recordPath, tfRecordSamples(manifest, s.images, *s.paths),
				labelMap, c.cfg.NumShards)
			if err != nil {
				return nil, fmt.Errorf("failed to write the %s TFRecord: %w", s.name, err)
			}
		}
	}

	return report, nil
}

// validImages returns the images whose source file exists, in manifest order, along with the
// number of images that were left out.
func (c *Converter) validImages(images []COCOImage) (valid []COCOImage, missing int) {
	valid = make([]COCOImage, 0, len(images))
	for _, img := range images {
		src := filepath.Join(c.cfg.ImageDir, img.FileName)
		if !isRegularFile(src) {
			log.Warn("Source image not found, skipping", "image_id", img.ID, "path", src)
			missing++
			continue
		}
		valid = append(valid, img)
	}
	return valid, missing
}

// writeSplit writes the label files, images and list file of one split. It returns the output
// image paths and the number of labels written.
func (c *Converter) writeSplit(m *COCOManifest, split string, images []COCOImage) (
	paths []string, numLabels int, err error) {

	list, err := createImageList(listPath(c.cfg.OutputDir, split))
	if err != nil {
		return nil, 0, err
	}
	defer closeWithErrCheck(list, &err)

	splitDir := filepath.Join(c.cfg.OutputDir, split)
	paths = make([]string, 0, len(images))
	for _, img := range images {
		outName, err := c.cfg.Images.outputFileName(img.FileName)
		if err != nil {
			return nil, 0, err
		}
		src := filepath.Join(c.cfg.ImageDir, img.FileName)
		dst := filepath.Join(splitDir, outName)
		if dir := filepath.Dir(dst); dir != splitDir {
			// Nested file names keep their sub-directories.
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, 0, &IOError{Op: "create", Path: dir, Err: err}
			}
		}

		n, err := WriteDarknetLabels(replaceExt(dst, ".txt"), m.Labels(img))
		if err != nil {
			return nil, 0, err
		}
		if err := c.images.process(src, dst); err != nil {
			return nil, 0, err
		}
		if err := list.add(dst); err != nil {
			return nil, 0, err
		}

		log.Debug("Converted image", "image_id", img.ID, "path", dst, "labels", n)
		numLabels += n
		paths = append(paths, dst)
	}

	return paths, numLabels, nil
}

// listPath returns the path of the list file of split under root.
func listPath(root, split string) string {
	return filepath.Join(root, split+".txt")
}

// Convert runs a conversion with the given configuration.
func Convert(cfg Config) (*Report, error) {
	c, err := NewConverter(cfg)
	if err != nil {
		return nil, err
	}
	return c.Run()
}
