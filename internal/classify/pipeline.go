package classify

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/Brownie44l1/tree-api/internal/preprocess"
)

// Inferencer maps an input tensor to a per-class probability vector.
// *model.Model satisfies it.
type Inferencer interface {
	Run(ctx context.Context, input []float32) ([]float32, error)
}

// Pipeline runs preprocessing, inference and the decision for one image at
// a time. It holds no mutable state and may be shared between goroutines
// as long as the Inferencer is safe for concurrent use.
type Pipeline struct {
	model     Inferencer
	labels    []string
	threshold float32
	imageSize int
	maxPixels int
	logger    *slog.Logger
}

type Option func(*Pipeline)

func WithThreshold(threshold float32) Option {
	return func(p *Pipeline) { p.threshold = threshold }
}

func WithImageSize(size int) Option {
	return func(p *Pipeline) { p.imageSize = size }
}

// WithMaxPixels bounds the decoded size of images read by PredictFile.
func WithMaxPixels(n int) Option {
	return func(p *Pipeline) { p.maxPixels = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// NewPipeline wires an already loaded model and its labels. A nil model is
// accepted; every prediction then reports KindLoadError.
func NewPipeline(m Inferencer, labels []string, opts ...Option) *Pipeline {
	p := &Pipeline{
		model:     m,
		labels:    append([]string(nil), labels...),
		threshold: DefaultThreshold,
		imageSize: preprocess.DefaultImageSize,
		maxPixels: preprocess.DefaultMaxPixels,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p
}

func (p *Pipeline) Threshold() float32 { return p.threshold }

func (p *Pipeline) ImageSize() int { return p.imageSize }

func (p *Pipeline) MaxPixels() int { return p.maxPixels }

// Labels returns a copy of the label set.
func (p *Pipeline) Labels() []string { return append([]string(nil), p.labels...) }

// TensorSize is the number of values a raw input tensor must hold.
func (p *Pipeline) TensorSize() int {
	return p.imageSize * p.imageSize * preprocess.Channels
}

// Predict classifies a decoded image.
func (p *Pipeline) Predict(ctx context.Context, img image.Image) (res Result) {
	if p.model == nil {
		return LoadFailed(nil)
	}

	defer func() {
		if r := recover(); r != nil {
			res = inferenceFailed("preprocess", fmt.Errorf("%w: panic: %v", ErrInvalidInput, r))
		}
	}()

	tensor, err := preprocess.Tensor(img, p.imageSize)
	if err != nil {
		return inferenceFailed("preprocess", fmt.Errorf("%w: %w", ErrInvalidInput, err))
	}
	return p.PredictTensor(ctx, tensor)
}

// PredictTensor classifies an already preprocessed input tensor.
func (p *Pipeline) PredictTensor(ctx context.Context, tensor []float32) (res Result) {
	if p.model == nil {
		return LoadFailed(nil)
	}
	if len(tensor) != p.TensorSize() {
		return inferenceFailed("input", fmt.Errorf("%w: expected %d values, got %d", ErrInvalidInput, p.TensorSize(), len(tensor)))
	}

	defer func() {
		if r := recover(); r != nil {
			res = inferenceFailed("model", fmt.Errorf("runtime panic: %v", r))
		}
	}()

	probs, err := p.model.Run(ctx, tensor)
	if err != nil {
		return inferenceFailed("model", err)
	}
	if len(probs) == 0 {
		return inferenceFailed("model", fmt.Errorf("empty output vector"))
	}

	prediction := Decide(probs, p.labels, p.threshold)
	p.logger.Debug("prediction",
		"label", prediction.Label,
		"index", prediction.Index,
		"confidence", prediction.Confidence,
		"unsure", prediction.Unsure,
	)
	return okResult(prediction)
}

// PredictFile decodes the image stored at path and classifies it. Files
// that cannot be opened or decoded are reported as inference errors.
func (p *Pipeline) PredictFile(ctx context.Context, path string) Result {
	if p.model == nil {
		return LoadFailed(nil)
	}

	img, _, err := preprocess.DecodeFile(path, p.maxPixels)
	if err != nil {
		return inferenceFailed("decode", fmt.Errorf("%w: %w", ErrInvalidInput, err))
	}
	return p.Predict(ctx, img)
}

// PredictAsync runs Predict on its own goroutine and delivers exactly one
// Result on the returned channel. A running prediction is not interrupted
// by ctx; overlapping calls are not coordinated with each other.
func (p *Pipeline) PredictAsync(ctx context.Context, img image.Image) <-chan Result {
	return async(func() Result { return p.Predict(ctx, img) })
}

// PredictFileAsync is the asynchronous form of PredictFile.
func (p *Pipeline) PredictFileAsync(ctx context.Context, path string) <-chan Result {
	return async(func() Result { return p.PredictFile(ctx, path) })
}

func async(run func() Result) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		out <- run()
	}()
	return out
}
