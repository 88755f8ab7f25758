// Package schema validates artifact bytes against governed CUE schemas —
// this module's equivalent of JSON Schema Draft 2020-12, grounded on the
// teacher's internal/cli loader/validate pair (cuecontext.New, load.Instances,
// cue.ParsePath) but narrowed to the one thing the artifact kernel needs:
// load a single named schema and unify it against one document.
package schema

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/constellation2/truthcore/internal/errs"
)

// Registry loads and caches compiled CUE schema definitions from a
// directory of .cue files (one package, many top-level definitions —
// #NavSnapshot, #DrawdownPack, and so on).
type Registry struct {
	dir string
	ctx *cue.Context

	mu      sync.Mutex
	schemas cue.Value
	loaded  bool
}

// NewRegistry returns a Registry that lazily loads schemaDir on first use.
func NewRegistry(schemaDir string) *Registry {
	return &Registry{dir: schemaDir, ctx: cuecontext.New()}
}

func (r *Registry) load() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: r.dir})
	if len(instances) == 0 {
		return errs.New(errs.SchemaInvalid, "NO_CUE_INSTANCES", r.dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return errs.Wrap(errs.SchemaInvalid, "CUE_LOAD_FAILED", r.dir, inst.Err)
	}

	val := r.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return errs.Wrap(errs.SchemaInvalid, "CUE_BUILD_FAILED", r.dir, err)
	}

	r.schemas = val
	r.loaded = true
	return nil
}

// Validate checks that data (canonical JSON bytes) conforms to the
// definition named defName (e.g. "#NavSnapshot") within the registry's
// schema directory. It returns a *errs.Error with Kind SchemaInvalid on any
// violation, never a bare CUE error.
func (r *Registry) Validate(defName string, data []byte) error {
	if err := r.load(); err != nil {
		return err
	}

	def := r.schemas.LookupPath(cue.ParsePath(defName))
	if !def.Exists() {
		return errs.New(errs.SchemaInvalid, "UNKNOWN_SCHEMA", defName)
	}

	doc := r.ctx.CompileBytes(data)
	if err := doc.Err(); err != nil {
		return errs.Wrap(errs.SchemaInvalid, "DOCUMENT_PARSE_FAILED", defName, err)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true), cue.All()); err != nil {
		return errs.Wrap(errs.SchemaInvalid, "SCHEMA_VIOLATION", fmt.Sprintf("%s: %s", defName, err.Error()), err)
	}
	return nil
}
