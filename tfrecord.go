package cococonv

// TFRecord object detection specific functionality.

import (
	"fmt"
	"image"
	"io"
	"iter"
	"math"
	"os"

	"github.com/charmbracelet/log"
	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow

	"github.com/sensorable/cococonv/protos"
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// TFRecordLabelMap assigns TFRecord class IDs to class names. The ID of a class is its Darknet
// class index plus one, as ID 0 is reserved for the background.
type TFRecordLabelMap struct {
	names []string
}

// NewTFRecordLabelMap creates the label map for the class names in Darknet class order.
func NewTFRecordLabelMap(names []string) TFRecordLabelMap {
	return TFRecordLabelMap{names: names}
}

// ID returns the TFRecord class ID for the Darknet class index.
func (m TFRecordLabelMap) ID(class int) int64 {
	return int64(class + 1)
}

// Name returns the class name for the Darknet class index.
func (m TFRecordLabelMap) Name(class int) string {
	if class < 0 || class >= len(m.names) {
		return ""
	}
	return m.names[class]
}

// Save writes the label map in prototxt format to path.
func (m TFRecordLabelMap) Save(path string) (err error) {
	siLabelMap := &protos.StringIntLabelMap{
		Item: make([]*protos.StringIntLabelMapItem, 0, len(m.names)),
	}
	for i, name := range m.names {
		siLabelMap.Item = append(siLabelMap.Item, &protos.StringIntLabelMapItem{
			Name: proto.String(name),
			Id:   proto.Int32(int32(m.ID(i))),
		})
	}

	file, err := os.Create(path)
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	defer closeWithErrCheck(file, &err)

	if err := proto.MarshalText(file, siLabelMap); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}

	return nil
}

// TFRecordSample is one image of a dataset to be written as a tensorflow.Example.
type TFRecordSample struct {
	ImagePath string
	SourceID  int
	Labels    iter.Seq[DarknetLabel]
}

// tfRecordSamples pairs the images of a split with their output paths.
func tfRecordSamples(m *COCOManifest, images []COCOImage, paths []string) []TFRecordSample {
	samples := make([]TFRecordSample, len(images))
	for i, img := range images {
		samples[i] = TFRecordSample{ImagePath: paths[i], SourceID: img.ID, Labels: m.Labels(img)}
	}
	return samples
}

// toTFFeatures converts a sample to the feature map of a TensorFlow object detection example.
func toTFFeatures(s TFRecordSample, labelMap TFRecordLabelMap) (TFFeatureMap, error) {
	// Get the image width and height.
	img, format, err := decodeImageConfig(s.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to decode the image metadata: %v", err)
	}

	// Read the image data.
	imgData, err := readFile(s.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %v", err)
	}

	// Prepare the feature map for the per file data.
	f := make(TFFeatureMap, 16)
	f["image/height"] = img.Height
	f["image/width"] = img.Width
	f["image/filename"] = s.ImagePath
	f["image/source_id"] = fmt.Sprint(s.SourceID)
	f["image/encoded"] = imgData
	f["image/format"] = format

	// Prepare the per label data. Darknet boxes are relative already.
	var xmins, ymins, xmaxs, ymaxs []float32
	var classes []string
	var classIDs []int64
	for l := range s.Labels {
		xmins = append(xmins, float32(l.CX-l.Width/2))
		ymins = append(ymins, float32(l.CY-l.Height/2))
		xmaxs = append(xmaxs, float32(l.CX+l.Width/2))
		ymaxs = append(ymaxs, float32(l.CY+l.Height/2))
		classes = append(classes, labelMap.Name(l.Class))
		classIDs = append(classIDs, labelMap.ID(l.Class))
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return f, nil
}

// WriteTFRecord writes the samples as tensorflow.Example records to one or more TFRecord files
// stored under recordFilePath (with suffixes added when numShards > 1).
func WriteTFRecord(recordFilePath string, samples []TFRecordSample, labelMap TFRecordLabelMap,
	numShards int) (err error) {

	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	if numShards <= 0 {
		numShards = 1
	}

	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	// An empty split still gets a (first) shard file so that consumers find it.
	if len(samples) == 0 {
		shardPath := recordFilePath
		if numShards > 1 {
			shardPath += fmtShardSuffix(0)
		}
		log.Warn("No examples to write, creating an empty TFRecord file", "path", shardPath)
		f, err := os.Create(shardPath)
		if err != nil {
			return &IOError{Op: "create", Path: shardPath, Err: err}
		}
		if err := f.Close(); err != nil {
			return &IOError{Op: "write", Path: shardPath, Err: err}
		}
		return nil
	}

	var shardFile *os.File
	defer func() {
		if shardFile != nil {
			closeWithErrCheck(shardFile, &err)
		}
	}()
	shardSize := int(math.Ceil(float64(len(samples)) / float64(numShards)))
	shardIdx := -1

	// Convert and serialise one sample at a time.
	for i, s := range samples {
		// Check if a new shard file needs to be opened for writing.
		if i%shardSize == 0 {
			shardIdx++

			// Close the previous shard file.
			if shardFile != nil {
				if err := shardFile.Close(); err != nil {
					shardFile = nil
					return &IOError{Op: "write", Path: recordFilePath, Err: err}
				}
				shardFile = nil
			}

			shardPath := recordFilePath
			if numShards > 1 {
				shardPath += fmtShardSuffix(shardIdx)
			}
			f, err := os.Create(shardPath)
			if err != nil {
				return &IOError{Op: "create", Path: shardPath, Err: err}
			}
			shardFile = f
		}

		features, err := toTFFeatures(s, labelMap)
		if err != nil {
			return fmt.Errorf("failed to convert %q: %w", s.ImagePath, err)
		}
		if err := writeTFRecordExample(shardFile, example.New(features)); err != nil {
			return &IOError{Op: "write", Path: shardFile.Name(), Err: err}
		}
	}

	log.Printf("Wrote %d examples to %s", len(samples), recordFilePath)
	return nil
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// decodeImageConfig opens the file at path and returns the results of image.DecodeConfig.
func decodeImageConfig(path string) (config image.Config, format string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer file.Close()

	return image.DecodeConfig(file)
}
