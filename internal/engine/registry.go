package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/vk/foldrun/internal/control"
)

// ErrEngineNotFound is returned by lookups for unregistered keys.
var ErrEngineNotFound = errors.New("engine not found")

// Bundle is the unit of registration: the standardized wrapper, the
// unconstrained core logic, and the parameter-baseline callable.
type Bundle struct {
	Role     Role
	Wrapper  any
	Core     any
	Defaults func() control.Params
}

// Module is implemented by packages that contribute engines to a registry.
type Module interface {
	Register(r *Registry)
}

// Registry maps string keys to validated engine bundles for one application
// instance. Construct it once at startup and pass it by reference; there is
// no package-level registry state.
type Registry struct {
	logger  *slog.Logger
	bundles map[string]*Bundle
}

// New creates an empty registry. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger, bundles: make(map[string]*Bundle)}
}

// Register validates the bundle and binds it to key. Validation failures are
// logged as warnings and the engine is skipped; a prior valid binding for
// the key stays in place. A valid re-registration overwrites the previous
// binding (last registration wins).
func (r *Registry) Register(key string, b *Bundle) {
	if err := r.validate(key, b); err != nil {
		r.logger.Warn("Engine registration failed, skipping.", "engine", key, "error", err)
		return
	}

	if _, exists := r.bundles[key]; exists {
		r.logger.Debug("Replacing existing engine binding.", "engine", key, "role", b.Role)
	} else {
		r.logger.Debug("Registering engine.", "engine", key, "role", b.Role)
	}
	r.bundles[key] = b
}

// Len returns the number of registered engines.
func (r *Registry) Len() int {
	return len(r.bundles)
}

// Has reports whether key is bound.
func (r *Registry) Has(key string) bool {
	_, ok := r.bundles[key]
	return ok
}

// Lookup returns the bundle for key.
func (r *Registry) Lookup(key string) (*Bundle, error) {
	b, ok := r.bundles[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEngineNotFound, key)
	}
	return b, nil
}

// Defaults returns the engine's parameter baseline, or nil when the key is
// unbound.
func (r *Registry) Defaults(key string) control.Params {
	b, ok := r.bundles[key]
	if !ok {
		return nil
	}
	return b.Defaults()
}

func (r *Registry) lookupRole(key string, role Role) (*Bundle, error) {
	b, err := r.Lookup(key)
	if err != nil {
		return nil, err
	}
	if b.Role != role {
		return nil, fmt.Errorf("engine %q is registered for role %q, want %q", key, b.Role, role)
	}
	return b, nil
}

// Split returns the split engine bound to key.
func (r *Registry) Split(key string) (SplitFunc, error) {
	b, err := r.lookupRole(key, RoleSplit)
	if err != nil {
		return nil, err
	}
	return b.Wrapper.(SplitFunc), nil
}

// Execution returns the execution strategy bound to key.
func (r *Registry) Execution(key string) (ExecFunc, error) {
	b, err := r.lookupRole(key, RoleExecution)
	if err != nil {
		return nil, err
	}
	return b.Wrapper.(ExecFunc), nil
}

// Body returns the pipeline-body engine bound to key.
func (r *Registry) Body(key string) (BodyFunc, error) {
	b, err := r.lookupRole(key, RoleBody)
	if err != nil {
		return nil, err
	}
	return b.Wrapper.(BodyFunc), nil
}

// Transform returns the stage-transform engine bound to key.
func (r *Registry) Transform(key string) (TransformFunc, error) {
	b, err := r.lookupRole(key, RoleTransform)
	if err != nil {
		return nil, err
	}
	return b.Wrapper.(TransformFunc), nil
}

// Evaluation returns the evaluation engine bound to key.
func (r *Registry) Evaluation(key string) (EvalFunc, error) {
	b, err := r.lookupRole(key, RoleEvaluation)
	if err != nil {
		return nil, err
	}
	return b.Wrapper.(EvalFunc), nil
}

// Report returns the report engine bound to key.
func (r *Registry) Report(key string) (ReportFunc, error) {
	b, err := r.lookupRole(key, RoleReport)
	if err != nil {
		return nil, err
	}
	return b.Wrapper.(ReportFunc), nil
}

// Publish returns the publish engine bound to key.
func (r *Registry) Publish(key string) (PublishFunc, error) {
	b, err := r.lookupRole(key, RolePublish)
	if err != nil {
		return nil, err
	}
	return b.Wrapper.(PublishFunc), nil
}
