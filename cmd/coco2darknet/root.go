package main

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sensorable/cococonv"
)

// envPrefix prefixes the environment variables that can stand in for flags, e.g.
// COCOCONV_RATIO for --ratio.
const envPrefix = "COCOCONV"

// newRootCmd creates the conversion command. Flag values can also be given through the
// environment; flags take precedence.
func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "coco2darknet <manifest> <output-dir>",
		Short: "Convert a COCO dataset to Darknet labels with train/val splits",
		Long: `coco2darknet reads a COCO annotation manifest and writes a Darknet dataset to
<output-dir>, which must not exist yet:

  category.names          class names, one per line
  train.txt, val.txt      the image paths of each split
  train/, val/            images and their .txt label files

Source images are looked up in the "images" directory next to the manifest's directory
unless --images is given. Images without a source file are skipped.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v, args[0], args[1])
		},
	}

	f := cmd.Flags()
	f.Float64("ratio", cococonv.DefaultRatio, "The fraction of images in the training set, in (0, 1)")
	f.String("images", "", "The source image `dir` (default <manifest>/../../images)")
	f.Int64("seed", 0, "The seed for the shuffle before splitting (0 seeds from the clock)")
	f.Bool("data-file", false, "Also write a Darknet "+cococonv.DataFileName+" file")
	f.Bool("tfrecord", false, "Also write TFRecord files and a label map for both splits")
	f.Int("num-shards", 1, "The number of TFRecord shard files per split")
	f.Int("resize-longer", 0,
		"The target `length` for the longer side of the images (zero to keep aspect ratio)")
	f.Int("resize-shorter", 0,
		"The target `length` for the shorter side of the images (zero to keep aspect ratio)")
	f.String("image-enc", "keep", "The `encoding` for output images {keep, jpg, png}")
	f.Int("jpeg-quality", 92, "The quality to use when encoding JPEGs [1, 100]")
	f.String("downsample-filter", "box",
		"The filter to use when downsampling an image {nearest, box, linear, gaussian, lanczos}")
	f.String("upsample-filter", "linear",
		"The filter to use when upsampling an image {nearest, box, linear, gaussian, lanczos}")
	f.String("log-level", "info", "The log `level` {debug, info, warn, error}")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(f); err != nil {
		panic(err)
	}

	return cmd
}

// run converts the dataset with the settings held by v.
func run(v *viper.Viper, manifestPath, outputDir string) error {
	level, err := log.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	log.SetLevel(level)

	cfg := cococonv.Config{
		ManifestPath:  manifestPath,
		OutputDir:     outputDir,
		ImageDir:      v.GetString("images"),
		Ratio:         v.GetFloat64("ratio"),
		WriteDataFile: v.GetBool("data-file"),
		TFRecord:      v.GetBool("tfrecord"),
		NumShards:     v.GetInt("num-shards"),
		Images: cococonv.ImageOptions{
			ResizeLonger:       v.GetInt("resize-longer"),
			ResizeShorter:      v.GetInt("resize-shorter"),
			Encoding:           v.GetString("image-enc"),
			JPEGQuality:        v.GetInt("jpeg-quality"),
			DownsamplingFilter: v.GetString("downsample-filter"),
			UpsamplingFilter:   v.GetString("upsample-filter"),
		},
	}
	if seed := v.GetInt64("seed"); seed != 0 {
		cfg.Rand = rand.New(rand.NewSource(seed))
	}

	report, err := cococonv.Convert(cfg)
	if err != nil {
		return err
	}

	log.Info("Conversion finished", "train", len(report.Train), "val", len(report.Val),
		"skipped", report.Missing, "labels", report.Labels)
	return nil
}
