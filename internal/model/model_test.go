package model

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadLabelsSkipsBlankLines(t *testing.T) {
	path := writeFile(t, t.TempDir(), "labels.txt", "Oak\n\n  Pine  \r\nMaple\n")

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, LabelSet{"Oak", "Pine", "Maple"}, labels)
}

func TestLoadLabelsErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadLabels("")
	assert.Error(t, err)

	_, err = LoadLabels(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)

	empty := writeFile(t, dir, "empty.txt", "\n\n")
	_, err = LoadLabels(empty)
	assert.Error(t, err)
}

func TestResolveLabelsFallbacks(t *testing.T) {
	dir := t.TempDir()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	t.Run("label file wins", func(t *testing.T) {
		path := writeFile(t, dir, "labels.txt", "Oak\nPine\n")
		got := resolveLabels(path, Metadata{Classes: []string{"A", "B"}}, logger)
		assert.Equal(t, LabelSet{"Oak", "Pine"}, got)
	})

	t.Run("metadata classes", func(t *testing.T) {
		got := resolveLabels(filepath.Join(dir, "none.txt"), Metadata{Classes: []string{"A", "B"}}, logger)
		assert.Equal(t, LabelSet{"A", "B"}, got)
	})

	t.Run("unknown placeholder", func(t *testing.T) {
		logs.Reset()
		got := resolveLabels(filepath.Join(dir, "none.txt"), Metadata{}, logger)
		assert.Equal(t, LabelSet{UnknownLabel}, got)
		assert.Contains(t, logs.String(), "labels_fallback")
	})

	t.Run("duplicates are kept and logged", func(t *testing.T) {
		logs.Reset()
		path := writeFile(t, dir, "dupes.txt", "Oak\nPine\nOak\n")
		got := resolveLabels(path, Metadata{}, logger)
		assert.Equal(t, LabelSet{"Oak", "Pine", "Oak"}, got)
		assert.Contains(t, logs.String(), "labels_duplicate")
		assert.Contains(t, logs.String(), "first_index=0")
	})
}

func TestReadMetadata(t *testing.T) {
	dir := t.TempDir()

	meta, err := readMetadata("")
	require.NoError(t, err)
	assert.Equal(t, Metadata{}, meta)

	meta, err = readMetadata(filepath.Join(dir, "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, Metadata{}, meta)

	path := writeFile(t, dir, "model_metadata.json",
		`{"input_shape":[1,224,224,3],"output_shape":[1,2],"classes":["Oak","Pine"],"image_size":224}`)
	meta, err = readMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 224, 224, 3}, meta.InputShape)
	assert.Equal(t, []int64{1, 2}, meta.OutputShape)
	assert.Equal(t, []string{"Oak", "Pine"}, meta.Classes)
	assert.Equal(t, 224, meta.ImageSize)

	bad := writeFile(t, dir, "bad.json", `{"input_shape":`)
	_, err = readMetadata(bad)
	assert.Error(t, err)
}

func TestShapeHelpers(t *testing.T) {
	assert.Equal(t, []int64{1, 224, 224, 3}, fixDynamicShape([]int64{-1, 224, 224, 3}))
	assert.Equal(t, int64(150528), shapeSize([]int64{1, 224, 224, 3}))
	assert.Equal(t, int64(0), shapeSize(nil))

	assert.NoError(t, checkInputShape([]int64{1, 224, 224, 3}, 224))
	assert.Error(t, checkInputShape([]int64{1, 3, 128, 128}, 224))
}

func TestResolveImageSize(t *testing.T) {
	assert.Equal(t, 96, resolveImageSize(96, Metadata{ImageSize: 224}))
	assert.Equal(t, 160, resolveImageSize(0, Metadata{ImageSize: 160}))
	assert.Equal(t, 128, resolveImageSize(0, Metadata{InputShape: []int64{1, 128, 128, 3}}))
	assert.Equal(t, DefaultImageSize, resolveImageSize(0, Metadata{}))
}

func TestLoadMissingModelIsLoadError(t *testing.T) {
	_, err := Load(LoadConfig{ModelPath: filepath.Join(t.TempDir(), "model.onnx")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLoad))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadRejectsDirectoryAndEmptyFile(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(LoadConfig{ModelPath: dir})
	assert.ErrorIs(t, err, ErrLoad)

	empty := writeFile(t, dir, "empty.onnx", "")
	_, err = Load(LoadConfig{ModelPath: empty})
	assert.ErrorIs(t, err, ErrLoad)
}

func TestLoadCorruptMetadataIsLoadError(t *testing.T) {
	dir := t.TempDir()
	modelPath := writeFile(t, dir, "model.onnx", "not really onnx")
	metaPath := writeFile(t, dir, "model_metadata.json", "{")

	_, err := Load(LoadConfig{ModelPath: modelPath, MetadataPath: metaPath})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoad)
	assert.Contains(t, err.Error(), "parse metadata")
}
