package cococonv

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorable/cococonv/protos"
)

func TestTFRecordLabelMap(t *testing.T) {
	m := NewTFRecordLabelMap([]string{"cat", "dog"})

	assert.Equal(t, int64(1), m.ID(0))
	assert.Equal(t, int64(2), m.ID(1))
	assert.Equal(t, "dog", m.Name(1))
	assert.Equal(t, "", m.Name(2))

	path := filepath.Join(t.TempDir(), LabelMapFileName)
	require.NoError(t, m.Save(path))

	text, err := os.ReadFile(path)
	require.NoError(t, err)
	var loaded protos.StringIntLabelMap
	require.NoError(t, proto.UnmarshalText(string(text), &loaded))

	require.Len(t, loaded.GetItem(), 2)
	assert.Equal(t, "cat", loaded.Item[0].GetName())
	assert.Equal(t, int32(1), loaded.Item[0].GetId())
	assert.Equal(t, "dog", loaded.Item[1].GetName())
	assert.Equal(t, int32(2), loaded.Item[1].GetId())
}

func TestWriteTFRecord(t *testing.T) {
	dir := t.TempDir()
	labelMap := NewTFRecordLabelMap([]string{"cat"})

	t.Run("no samples", func(t *testing.T) {
		path := filepath.Join(dir, "empty.record")
		require.NoError(t, WriteTFRecord(path, nil, labelMap, 1))
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Zero(t, info.Size())
	})

	t.Run("no samples with shards", func(t *testing.T) {
		path := filepath.Join(dir, "empty-sharded.record")
		require.NoError(t, WriteTFRecord(path, nil, labelMap, 3))
		assert.FileExists(t, path+"-00000-of-00003")
		assert.NoFileExists(t, path)
	})

	t.Run("single shard", func(t *testing.T) {
		imgPath := filepath.Join(dir, "a.png")
		writeTestPNG(t, imgPath, 6, 3)
		samples := []TFRecordSample{{
			ImagePath: imgPath,
			SourceID:  1,
			Labels:    slices.Values([]DarknetLabel{{Class: 0, CX: 0.5, CY: 0.5, Width: 0.5, Height: 1}}),
		}}

		path := filepath.Join(dir, "one.record")
		require.NoError(t, WriteTFRecord(path, samples, labelMap, 1))
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
	})

	t.Run("unreadable image", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.jpg")
		require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0644))
		samples := []TFRecordSample{{ImagePath: bad, Labels: slices.Values([]DarknetLabel(nil))}}

		err := WriteTFRecord(filepath.Join(dir, "bad.record"), samples, labelMap, 1)
		assert.Error(t, err)
	})
}

func TestToTFFeatures(t *testing.T) {
	imgPath := filepath.Join(t.TempDir(), "a.png")
	writeTestPNG(t, imgPath, 10, 20)
	s := TFRecordSample{
		ImagePath: imgPath,
		SourceID:  42,
		Labels: slices.Values([]DarknetLabel{
			{Class: 1, CX: 0.5, CY: 0.25, Width: 0.2, Height: 0.5},
		}),
	}

	f, err := toTFFeatures(s, NewTFRecordLabelMap([]string{"cat", "dog"}))
	require.NoError(t, err)

	assert.Equal(t, 10, f["image/width"])
	assert.Equal(t, 20, f["image/height"])
	assert.Equal(t, "png", f["image/format"])
	assert.Equal(t, "42", f["image/source_id"])
	assert.InDeltaSlice(t, []float32{0.4}, f["image/object/bbox/xmin"], 1e-6)
	assert.InDeltaSlice(t, []float32{0}, f["image/object/bbox/ymin"], 1e-6)
	assert.InDeltaSlice(t, []float32{0.6}, f["image/object/bbox/xmax"], 1e-6)
	assert.InDeltaSlice(t, []float32{0.5}, f["image/object/bbox/ymax"], 1e-6)
	assert.Equal(t, []string{"dog"}, f["image/object/class/text"])
	assert.Equal(t, []int64{2}, f["image/object/class/label"])
}
