package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// readMetadata returns the zero Metadata when path is empty or the file
// does not exist. A file that exists but cannot be parsed is an error.
func readMetadata(path string) (Metadata, error) {
	var metadata Metadata
	if path == "" {
		return metadata, nil
	}

	metaFile, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return metadata, nil
	}
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata: %w", err)
	}

	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return metadata, nil
}

// fixDynamicShape replaces symbolic or dynamic dimensions with 1.
func fixDynamicShape(shape []int64) []int64 {
	fixed := make([]int64, len(shape))
	for i, dim := range shape {
		if dim <= 0 {
			dim = 1
		}
		fixed[i] = dim
	}
	return fixed
}

func shapeSize(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	size := int64(1)
	for _, dim := range shape {
		size *= dim
	}
	return size
}

// resolveImageSize picks the square input resolution: an explicit override,
// then metadata, then the spatial dimension of an NHWC input shape.
func resolveImageSize(override int, meta Metadata) int {
	if override > 0 {
		return override
	}
	if meta.ImageSize > 0 {
		return meta.ImageSize
	}
	if len(meta.InputShape) == 4 && meta.InputShape[3] == 3 && meta.InputShape[1] > 0 {
		return int(meta.InputShape[1])
	}
	return DefaultImageSize
}

// checkInputShape verifies the model input holds exactly one
// size x size x 3 tensor.
func checkInputShape(shape []int64, imageSize int) error {
	want := int64(imageSize) * int64(imageSize) * 3
	if got := shapeSize(shape); got != want {
		return fmt.Errorf("input shape %v holds %d values, want %d (%dx%dx3)", shape, got, want, imageSize, imageSize)
	}
	return nil
}
