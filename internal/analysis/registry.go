package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/GriffinCanCode/pagetools/internal/decode"
	"github.com/GriffinCanCode/pagetools/internal/pagetext"
	"github.com/GriffinCanCode/pagetools/internal/task"
)

// InputKind names what an operation consumes
type InputKind string

const (
	InputText  InputKind = "text"
	InputImage InputKind = "image"
)

// Input is the prepared argument of an operation
type Input struct {
	Text       string
	Image      []byte
	ImageType  string
	Parameters map[string]string
}

// Func runs one operation and returns a JSON result
type Func func(ctx context.Context, in Input) ([]byte, error)

// Operation is a registered analysis
type Operation struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Input       InputKind `json:"input"`
	Model       string    `json:"model,omitempty"`
	// Required lists parameter names that must be present
	Required []string `json:"required,omitempty"`
	Fn       Func     `json:"-"`
}

// Registry is a concurrent-safe set of operations
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operation)}
}

// Register adds or replaces an operation
func (r *Registry) Register(op Operation) error {
	if op.Name == "" {
		return fmt.Errorf("operation name required")
	}
	if op.Fn == nil {
		return fmt.Errorf("operation %s: function required", op.Name)
	}
	switch op.Input {
	case "":
		op.Input = InputText
	case InputText, InputImage:
	default:
		return fmt.Errorf("operation %s: unknown input kind %q", op.Name, op.Input)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op.Name] = op
	return nil
}

// Get returns an operation by name
func (r *Registry) Get(name string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all operations sorted by name
func (r *Registry) List() []Operation {
	r.mu.RLock()
	ops := make([]Operation, 0, len(r.ops))
	for _, op := range r.ops {
		ops = append(ops, op)
	}
	r.mu.RUnlock()

	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

// Invoke runs the named operation over payload
func (r *Registry) Invoke(ctx context.Context, name string, payload decode.Payload, params map[string]string) ([]byte, error) {
	op, ok := r.Get(name)
	if !ok {
		return nil, task.NewError(task.ErrUnknownOperation, nil, "unknown operation %q", name)
	}

	in, err := prepare(op, payload, params)
	if err != nil {
		return nil, task.NewError(task.ErrBackendFailure, err, "%s", name)
	}

	out, err := run(ctx, op, in)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", task.ErrCancelled, ctx.Err())
		}
		return nil, task.NewError(task.ErrBackendFailure, err, "%s", name)
	}
	return out, nil
}

func prepare(op Operation, payload decode.Payload, params map[string]string) (Input, error) {
	for _, p := range op.Required {
		if strings.TrimSpace(params[p]) == "" {
			return Input{}, fmt.Errorf("parameter %q required", p)
		}
	}

	in := Input{Parameters: params}
	if op.Input == InputImage {
		if !decode.IsImage(payload.Data) {
			return Input{}, fmt.Errorf("payload of type %q is not an image", decode.Sniff(payload.Data))
		}
		in.Image = payload.Data
		in.ImageType = decode.Sniff(payload.Data)
		return in, nil
	}

	text, err := pagetext.Text(payload)
	if err != nil {
		return Input{}, err
	}
	if text == "" {
		return Input{}, fmt.Errorf("payload has no text")
	}
	in.Text = text
	return in, nil
}

// run calls op.Fn, converting a panic into an error
func run(ctx context.Context, op Operation, in Input) (out []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("operation panicked: %v", rec)
		}
	}()
	return op.Fn(ctx, in)
}
