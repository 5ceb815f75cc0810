package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ErrLoad marks every failure to bring the model artifact into memory.
var ErrLoad = errors.New("model load failed")

// LoadConfig locates the bundled assets.
type LoadConfig struct {
	ModelPath    string
	MetadataPath string
	LabelsPath   string

	// SharedLibraryPath points at the onnxruntime shared library. Empty
	// uses the platform default lookup.
	SharedLibraryPath string

	// ImageSize overrides the metadata resolution when positive.
	ImageSize int
	Logger    *slog.Logger
}

// Model is a loaded ONNX classifier together with its label set. It is
// built once at startup and shared read-only between predictions.
type Model struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]

	Metadata  Metadata
	Labels    LabelSet
	ImageSize int
}

// Load reads the model artifact, its optional metadata and label file, and
// prepares an inference session. Errors wrap ErrLoad.
func Load(cfg LoadConfig) (*Model, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	info, err := os.Stat(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to stat model %q: %w", ErrLoad, cfg.ModelPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: model path %q is a directory", ErrLoad, cfg.ModelPath)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: model file %q is empty", ErrLoad, cfg.ModelPath)
	}

	metadata, err := readMetadata(cfg.MetadataPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	if cfg.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: failed to initialize ONNX environment: %w", ErrLoad, err)
		}
	}

	if err := discoverIO(cfg.ModelPath, &metadata); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	imageSize := resolveImageSize(cfg.ImageSize, metadata)
	if err := checkInputShape(metadata.InputShape, imageSize); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create input tensor: %w", ErrLoad, err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("%w: failed to create output tensor: %w", ErrLoad, err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("%w: failed to create ONNX session: %w", ErrLoad, err)
	}

	labels := resolveLabels(cfg.LabelsPath, metadata, logger)
	numClasses := int(shapeSize(metadata.OutputShape))
	if len(labels) != numClasses {
		logger.Warn("labels_mismatch", "labels", len(labels), "classes", numClasses)
	}

	logger.Info("model_loaded",
		"path", cfg.ModelPath,
		"input", metadata.InputName,
		"input_shape", metadata.InputShape,
		"output", metadata.OutputName,
		"output_shape", metadata.OutputShape,
		"image_size", imageSize,
		"labels", len(labels),
	)

	return &Model{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		Metadata:     metadata,
		Labels:       labels,
		ImageSize:    imageSize,
	}, nil
}

// discoverIO fills tensor names and shapes the metadata left out by
// inspecting the model's first input and output.
func discoverIO(modelPath string, metadata *Metadata) error {
	needNames := metadata.InputName == "" || metadata.OutputName == ""
	needShapes := len(metadata.InputShape) == 0 || len(metadata.OutputShape) == 0
	if !needShapes && !needNames {
		return nil
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		if !needShapes {
			// Names are the only gap; assume the conventional ones.
			applyDefaultNames(metadata)
			return nil
		}
		return fmt.Errorf("failed to inspect model: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return errors.New("model declares no inputs or outputs")
	}

	if metadata.InputName == "" {
		metadata.InputName = inputs[0].Name
	}
	if metadata.OutputName == "" {
		metadata.OutputName = outputs[0].Name
	}
	if len(metadata.InputShape) == 0 {
		metadata.InputShape = fixDynamicShape(inputs[0].Dimensions)
	}
	if len(metadata.OutputShape) == 0 {
		metadata.OutputShape = fixDynamicShape(outputs[0].Dimensions)
	}
	applyDefaultNames(metadata)
	return nil
}

func applyDefaultNames(metadata *Metadata) {
	if metadata.InputName == "" {
		metadata.InputName = DefaultInputName
	}
	if metadata.OutputName == "" {
		metadata.OutputName = DefaultOutputName
	}
}

// NumClasses is the length of the output probability vector.
func (m *Model) NumClasses() int {
	return int(shapeSize(m.Metadata.OutputShape))
}

// Run executes one forward pass. The returned slice is a copy and stays
// valid after later runs.
func (m *Model) Run(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data := m.inputTensor.GetData()
	if len(input) != len(data) {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), len(data))
	}
	copy(data, input)

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return append([]float32(nil), m.outputTensor.GetData()...), nil
}

func (m *Model) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inputTensor != nil {
		m.inputTensor.Destroy()
		m.inputTensor = nil
	}
	if m.outputTensor != nil {
		m.outputTensor.Destroy()
		m.outputTensor = nil
	}
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
	ort.DestroyEnvironment()
}
