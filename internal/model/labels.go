package model

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// LoadLabels reads a newline separated label file. Blank lines are skipped.
func LoadLabels(path string) (LabelSet, error) {
	if path == "" {
		return nil, errors.New("labels path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()

	var labels LabelSet
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %q has no entries", path)
	}
	return labels, nil
}

// resolveLabels never fails: a missing label file falls back to the
// metadata classes, then to a single UnknownLabel.
func resolveLabels(path string, meta Metadata, logger *slog.Logger) LabelSet {
	labels, err := LoadLabels(path)
	if err == nil {
		warnDuplicates(labels, logger)
		return labels
	}
	if len(meta.Classes) > 0 {
		logger.Warn("labels_from_metadata", "path", path, "error", err.Error(), "classes", len(meta.Classes))
		labels = append(LabelSet(nil), meta.Classes...)
		warnDuplicates(labels, logger)
		return labels
	}
	logger.Warn("labels_fallback", "path", path, "error", err.Error(), "label", UnknownLabel)
	return LabelSet{UnknownLabel}
}

func warnDuplicates(labels LabelSet, logger *slog.Logger) {
	first := make(map[string]int, len(labels))
	for i, label := range labels {
		if j, seen := first[label]; seen {
			logger.Warn("labels_duplicate", "label", label, "index", i, "first_index", j)
			continue
		}
		first[label] = i
	}
}
