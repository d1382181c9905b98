package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/token"

	"github.com/roach88/cpcflow/internal/builtin"
	"github.com/roach88/cpcflow/internal/compiler"
	"github.com/roach88/cpcflow/internal/engine"
	"github.com/roach88/cpcflow/internal/harness"
	"github.com/roach88/cpcflow/internal/vtype"
)

// Workflow is the type registry and function library a command works
// against: the builtin math functions plus an optional CUE schema.
type Workflow struct {
	Registry *vtype.Registry
	Library  *engine.Library
	Schema   *compiler.Schema // nil without a schema directory
}

// LoadError represents an error that occurred while loading a schema or a
// network definition.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadWorkflow builds a fresh registry and library: the builtins, then the
// setup functions, then the schema. When schemaDir is not empty the CUE
// package in it is compiled and its functions are declared without bodies.
func LoadWorkflow(schemaDir string, setups ...harness.SetupFunc) (*Workflow, error) {
	r := vtype.NewRegistry()
	lib := engine.NewLibrary()
	if err := builtin.Register(r, lib); err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	for _, setup := range setups {
		if err := setup(r, lib); err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
		}
	}
	w := &Workflow{Registry: r, Library: lib}
	if schemaDir == "" {
		return w, nil
	}

	if err := checkSchemaDir(schemaDir); err != nil {
		return nil, err
	}
	schema, err := compiler.LoadDir(r, schemaDir)
	if err != nil {
		return nil, convertCompileError(err)
	}
	if err := schema.AddTo(lib); err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	}
	w.Schema = schema
	return w, nil
}

// checkSchemaDir verifies the directory exists and holds CUE files.
func checkSchemaDir(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}
	}
	if err != nil {
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema directory: %v", err)}
	}
	if !info.IsDir() {
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}
	return nil
}

// FindCUEFiles returns the .cue files directly inside dir. Nested
// directories are separate CUE packages and are not loaded.
func FindCUEFiles(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, "*.cue"))
}

// convertCompileError converts a compiler error to a LoadError with
// position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		code := ErrCodeInvalidSchema
		var ve compiler.ValidationError
		if errors.As(err, &ve) {
			code = ve.Code
		}
		msg := compileErr.Message
		if compileErr.Field != "" {
			msg = compileErr.Field + ": " + msg
		}
		return &LoadError{Code: code, Message: msg, Pos: compileErr.Pos}
	}
	return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
}

// Error code constants, unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // Schema or network load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeStoreFailed = "E006" // Checkpoint store error

	ErrCodeInvalidSchema  = "E119" // Schema compiles but does not resolve
	ErrCodeInvalidNetwork = "E130" // Network definition rejected
	ErrCodeCycle          = "E131" // Network definition has a dependency cycle
	ErrCodeRunFailed      = "E140" // Driver error or failed instances
)
