package descriptor

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry holds compiled CUE schemas the parser unifies descriptors
// against.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a schema registry with the built-in descriptor
// schema registered.
func NewSchemaRegistry(ctx *cue.Context) (*SchemaRegistry, error) {
	if ctx == nil {
		ctx = cuecontext.New()
	}
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}
	if err := sr.Register("descriptor", builtinDescriptorSchema); err != nil {
		return nil, err
	}
	return sr, nil
}

// Register compiles and stores a schema under the given name.
func (sr *SchemaRegistry) Register(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	sr.schemas[name] = val
	return nil
}

// Get retrieves a compiled schema by name.
func (sr *SchemaRegistry) Get(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// builtinDescriptorSchema constrains the top-level descriptor shape. Field
// semantics that CUE cannot express (overlay input/script exclusivity,
// follows targets existing) are checked in Go after decoding.
const builtinDescriptorSchema = `
description?: string

inputs?: [string]: {
	url?:     string
	rev?:     string
	follows?: string
}

overlays?: [...{
	input?:  string
	script?: string
}]

platforms: [...string] & [_, ...]

shells: [string]: {
	nativeBuildInputs?: [...string]
	buildInputs?: [...string]
	env?: {[string]: string}
}
`
