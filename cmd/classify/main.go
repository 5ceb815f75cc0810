// Command classify loads the bundled tree model once and prints a
// prediction for every image path given on the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Brownie44l1/tree-api/internal/classify"
	"github.com/Brownie44l1/tree-api/internal/config"
	"github.com/Brownie44l1/tree-api/internal/model"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, fs, err := config.Load("classify", args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		return 2
	}
	paths := fs.Args()
	if len(paths) == 0 {
		fmt.Fprintln(stderr, "usage: classify [flags] image...")
		return 2
	}

	logger := cfg.NewLogger(stderr)

	m, err := model.Load(model.LoadConfig{
		ModelPath:         cfg.ModelPath,
		MetadataPath:      cfg.MetadataPath,
		LabelsPath:        cfg.LabelsPath,
		SharedLibraryPath: cfg.OrtLibrary,
		ImageSize:         cfg.ImageSize,
		Logger:            logger,
	})

	var pipeline *classify.Pipeline
	if err != nil {
		logger.Error("failed to initialize model", "error", err)
	} else {
		defer m.Close()
		pipeline = classify.NewPipeline(m, m.Labels,
			classify.WithThreshold(float32(cfg.Threshold)),
			classify.WithImageSize(m.ImageSize),
			classify.WithMaxPixels(cfg.MaxImagePixels),
			classify.WithLogger(logger),
		)
	}

	return report(context.Background(), pipeline, paths, err, stdout)
}

// report launches one prediction per path and prints the results in
// argument order. It returns 1 when any prediction failed. When loadErr is
// set every path reports it and pipeline may be nil.
func report(ctx context.Context, pipeline *classify.Pipeline, paths []string, loadErr error, stdout io.Writer) int {
	pending := make([]<-chan classify.Result, len(paths))
	for i, path := range paths {
		if loadErr != nil {
			ch := make(chan classify.Result, 1)
			ch <- classify.LoadFailed(loadErr)
			pending[i] = ch
			continue
		}
		pending[i] = pipeline.PredictFileAsync(ctx, path)
	}

	code := 0
	for i, ch := range pending {
		res := <-ch
		if !res.OK() {
			code = 1
		}
		fmt.Fprintf(stdout, "%s: %s\n", paths[i], res)
	}
	return code
}
