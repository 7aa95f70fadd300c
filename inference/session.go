// Package inference - onnxruntime sessions and YOLO tensor helpers.
package inference

import (
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ExecutionProvider selects the onnxruntime backend.
type ExecutionProvider string

const (
	// ProviderCPU runs on the default CPU provider.
	ProviderCPU ExecutionProvider = "cpu"
	// ProviderCoreML runs on Apple's CoreML.
	ProviderCoreML ExecutionProvider = "coreml"
	// ProviderOpenVINO runs on Intel's OpenVINO.
	ProviderOpenVINO ExecutionProvider = "openvino"
)

// SessionOptions describes a single-input single-output model.
type SessionOptions struct {
	ModelPath string
	// SharedLibraryPath overrides DefaultSharedLibraryPath.
	SharedLibraryPath string
	Provider          ExecutionProvider
	IntraOpThreads    int
	InputName         string
	OutputName        string
	InputShape        ort.Shape
	OutputShape       ort.Shape
}

// Session represents a model session from the onnxruntime.
type Session struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]
}

var envMu sync.Mutex

// initEnvironment initializes the process wide onnxruntime environment once.
func initEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	return nil
}

// NewSession loads a model and allocates its input and output tensors.
//
// Arguments:
//   - opts: The model file, tensor names and shapes.
//
// Returns:
//   - *Session: The session, to be released with Close.
//   - error: An error if the runtime or the model cannot be loaded.
func NewSession(opts SessionOptions) (*Session, error) {
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "model not found at %s", opts.ModelPath)
	}

	libPath := opts.SharedLibraryPath
	if libPath == "" {
		libPath = DefaultSharedLibraryPath()
	}
	if err := initEnvironment(libPath); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](opts.InputShape)
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	outputTensor, err := ort.NewEmptyTensor[float32](opts.OutputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session options")
	}
	defer options.Destroy()

	if opts.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			inputTensor.Destroy()
			outputTensor.Destroy()
			return nil, errors.Wrap(err, "error setting intra-op threads")
		}
	}
	if err := appendProvider(options, opts.Provider); err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, err
	}

	session, err := ort.NewAdvancedSession(
		opts.ModelPath,
		[]string{opts.InputName},
		[]string{opts.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session")
	}

	return &Session{
		Session: session,
		Input:   inputTensor,
		Output:  outputTensor,
	}, nil
}

func appendProvider(options *ort.SessionOptions, provider ExecutionProvider) error {
	switch provider {
	case "", ProviderCPU:
		return nil
	case ProviderCoreML:
		return errors.Wrap(options.AppendExecutionProviderCoreML(0), "error enabling CoreML")
	case ProviderOpenVINO:
		return errors.Wrap(options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type": "CPU",
			"precision":   "FP32",
		}), "error enabling OpenVINO")
	}
	return errors.Errorf("unknown execution provider %q", provider)
}

// Run executes the model on the current contents of Input.
func (s *Session) Run() error {
	if s.Session == nil {
		return errors.New("session is closed")
	}
	return s.Session.Run()
}

// Close releases the resources associated with the Session. Safe to call twice.
func (s *Session) Close() {
	if s.Input != nil {
		s.Input.Destroy()
		s.Input = nil
	}
	if s.Output != nil {
		s.Output.Destroy()
		s.Output = nil
	}
	if s.Session != nil {
		s.Session.Destroy()
		s.Session = nil
	}
}

// DefaultSharedLibraryPath returns where the onnxruntime library is expected
// for the current platform.
func DefaultSharedLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "third_party/onnxruntime.dll"
	case "darwin":
		return "third_party/libonnxruntime.dylib"
	}
	if runtime.GOARCH == "arm64" {
		return "third_party/onnxruntime_arm64.so"
	}
	return "third_party/onnxruntime.so"
}
