package model

// Metadata describes the bundled model artifact. Every field is optional;
// missing shapes and tensor names are read from the ONNX file itself.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
}

// LabelSet is the ordered list of class names, index-aligned with the
// model's output vector.
type LabelSet []string

const (
	DefaultInputName  = "input"
	DefaultOutputName = "output"
	DefaultImageSize  = 224

	// UnknownLabel is the single placeholder used when no label list ships
	// with the model.
	UnknownLabel = "Unknown"
)
