package descriptor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
)

// Errors aggregates descriptor validation failures.
type Errors []ValidationError

// Error implements the error interface.
func (e Errors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("%d descriptor errors: %s", len(e), strings.Join(msgs, "; "))
}

// Parser parses and validates CUE environment descriptors.
type Parser struct {
	ctx       *cue.Context
	schemas   *SchemaRegistry
	validator *validator.Validate
}

// NewParser creates a descriptor parser with the built-in schema registered.
func NewParser() (*Parser, error) {
	ctx := cuecontext.New()
	schemas, err := NewSchemaRegistry(ctx)
	if err != nil {
		return nil, err
	}
	return &Parser{
		ctx:       ctx,
		schemas:   schemas,
		validator: validator.New(),
	}, nil
}

// Parse loads one or more descriptor sources (files or directories), unifies
// them with the built-in schema, and decodes the result. Multiple sources
// unify; conflicting concrete values are a CUE unification error, not a
// silent merge.
func (p *Parser) Parse(ctx context.Context, sources []string) (*Descriptor, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no descriptor sources provided")
	}

	var unified cue.Value
	var sourceFiles []string
	var parseErrors Errors

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		var val cue.Value
		var files []string
		var errs Errors
		if info.IsDir() {
			val, files, errs = p.loadDirectory(source)
		} else {
			val, errs = p.loadFile(source)
			files = []string{source}
		}

		if len(errs) > 0 {
			parseErrors = append(parseErrors, errs...)
			continue
		}
		if unified.Exists() {
			unified = unified.Unify(val)
		} else {
			unified = val
		}
		sourceFiles = append(sourceFiles, files...)
	}

	if len(parseErrors) > 0 {
		return nil, parseErrors
	}

	schema, _ := p.schemas.Get("descriptor")
	unified = unified.Unify(schema)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, convertCUEErrors(err)
	}

	return p.extract(unified, sourceFiles)
}

// ParseInline parses inline CUE content, for tests and scaffolding.
func (p *Parser) ParseInline(_ context.Context, content string) (*Descriptor, error) {
	val := p.ctx.CompileString(content, cue.Filename("inline"))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}

	schema, _ := p.schemas.Get("descriptor")
	val = val.Unify(schema)
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, convertCUEErrors(err)
	}

	return p.extract(val, []string{"inline"})
}

// loadDirectory loads a directory as a CUE package.
func (p *Parser) loadDirectory(dir string) (cue.Value, []string, Errors) {
	instances := load.Instances([]string{dir}, nil)
	if len(instances) == 0 {
		return cue.Value{}, nil, Errors{{File: dir, Message: "no CUE files found"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, convertCUEErrors(inst.Err)
	}

	val := p.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, convertCUEErrors(err)
	}

	var files []string
	for _, f := range inst.Files {
		if f.Filename != "" {
			files = append(files, f.Filename)
		}
	}
	return val, files, nil
}

// loadFile loads a single CUE file.
func (p *Parser) loadFile(path string) (cue.Value, Errors) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, Errors{{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}}
	}

	val := p.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, convertCUEErrors(err)
	}
	return val, nil
}

// extract decodes the unified CUE value into a Descriptor and runs the Go
// side of validation.
func (p *Parser) extract(val cue.Value, sourceFiles []string) (*Descriptor, error) {
	var d Descriptor
	if err := val.Decode(&d); err != nil {
		return nil, convertCUEErrors(err)
	}
	d.SourceFiles = sourceFiles

	if err := p.validator.Struct(&d); err != nil {
		return nil, Errors{{Message: fmt.Sprintf("descriptor validation failed: %v", err)}}
	}

	if errs := d.validate(); len(errs) > 0 {
		return nil, errs
	}
	return &d, nil
}

// validate checks the invariants CUE cannot express.
func (d *Descriptor) validate() Errors {
	var errs Errors

	for id, in := range d.Inputs {
		if in.Follows != "" {
			if _, ok := d.Inputs[in.Follows]; !ok {
				errs = append(errs, ValidationError{
					Path:    "inputs." + id,
					Message: fmt.Sprintf("follows unknown input %q", in.Follows),
				})
			}
		}
		if in.URL == "" && in.Follows == "" {
			errs = append(errs, ValidationError{
				Path:    "inputs." + id,
				Message: "input needs a url or a follows reference",
			})
		}
	}

	for i, ov := range d.Overlays {
		switch {
		case ov.Input != "" && ov.Script != "":
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("overlays[%d]", i),
				Message: "overlay declares both input and script",
			})
		case ov.Input == "" && ov.Script == "":
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("overlays[%d]", i),
				Message: "overlay declares neither input nor script",
			})
		case ov.Input != "":
			if _, ok := d.Inputs[ov.Input]; !ok {
				errs = append(errs, ValidationError{
					Path:    fmt.Sprintf("overlays[%d]", i),
					Message: fmt.Sprintf("overlay references undeclared input %q", ov.Input),
				})
			}
		}
	}

	// A shell with no inputs is legal: it projects an empty search path.
	// Flagging it is left to the warning-level governance policy.

	return errs
}

// convertCUEErrors converts CUE errors into ValidationErrors with positions.
func convertCUEErrors(err error) Errors {
	var out Errors
	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int
		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}
		out = append(out, ValidationError{
			File:    file,
			Line:    line,
			Column:  column,
			Message: errors.Details(e, nil),
		})
	}
	return out
}
