package classify

import (
	"errors"
	"fmt"

	"github.com/Brownie44l1/tree-api/internal/model"
)

var (
	// ErrLoad is returned when no usable model is available.
	ErrLoad = model.ErrLoad
	// ErrInference covers every failure while preprocessing or running the model.
	ErrInference = errors.New("inference failed")
	// ErrInvalidInput marks inference failures caused by the caller's input
	// rather than the model runtime.
	ErrInvalidInput = errors.New("invalid input")
)

// Kind tells callers how a prediction ended without inspecting strings.
type Kind int

const (
	KindOK Kind = iota
	KindLoadError
	KindInferenceError
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindLoadError:
		return "load_error"
	case KindInferenceError:
		return "inference_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the outcome of one prediction request. Prediction is only
// meaningful when Kind is KindOK; Err is set otherwise and wraps ErrLoad
// or ErrInference.
type Result struct {
	Kind       Kind
	Prediction Prediction
	Err        error
}

// OK reports whether the prediction succeeded (confident or unsure).
func (r Result) OK() bool {
	return r.Kind == KindOK
}

// String is the user facing message for the result.
func (r Result) String() string {
	if r.Kind == KindOK {
		return r.Prediction.String()
	}
	msg := "Unknown error"
	if r.Err != nil {
		msg = r.Err.Error()
	}
	return "Error: " + msg
}

func okResult(p Prediction) Result {
	return Result{Kind: KindOK, Prediction: p}
}

// LoadFailed builds the result reported when the model could not be loaded.
func LoadFailed(err error) Result {
	if err == nil {
		err = errors.New("model not loaded")
	}
	if !errors.Is(err, ErrLoad) {
		err = fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return Result{Kind: KindLoadError, Err: err}
}

func inferenceFailed(stage string, err error) Result {
	return Result{Kind: KindInferenceError, Err: fmt.Errorf("%w: %s: %w", ErrInference, stage, err)}
}
