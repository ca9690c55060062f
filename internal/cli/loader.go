package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/format"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/cellgram/internal/compiler"
)

// GrammarSource is grammar text read from disk, ready for CompileSource.
type GrammarSource struct {
	Path      string
	Source    string
	FileCount int // CUE files that contributed to Source
}

// LoadError represents an error that occurred while loading an input file.
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

// LoadGrammar reads grammar source from path.
//
// A file is returned as written. A directory is loaded as one CUE package:
// its files are unified and the concrete result is re-rendered as CUE, so
// definitions split across files end up in a single self-contained source.
func LoadGrammar(path string) (*GrammarSource, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("grammar not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing grammar: %v", err)}
	}

	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading grammar: %v", err)}
		}
		return &GrammarSource{Path: path, Source: string(data), FileCount: 1}, nil
	}

	cueFiles, err := FindCUEFiles(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	src, err := format.Node(value.Syntax(cue.Final(), cue.Concrete(true)))
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("rendering CUE value: %v", err)}
	}
	return &GrammarSource{Path: path, Source: string(src), FileCount: len(cueFiles)}, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		code, message := splitCode(compileErr.Message)
		if code == "" {
			code = MapFieldToErrorCode(compileErr.Field)
		}
		return &LoadError{Code: code, Message: fmt.Sprintf("%s: %s", compileErr.Field, message), Pos: compileErr.Pos}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// splitCode separates a leading "[E104] " validation code from a message.
func splitCode(message string) (string, string) {
	if !strings.HasPrefix(message, "[E") {
		return "", message
	}
	end := strings.Index(message, "] ")
	if end < 0 {
		return "", message
	}
	return message[1:end], message[end+2:]
}

// Error code constants - unified across all CLI commands. Grammar validation
// codes (E100-E121) come from the compiler unchanged.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeGrammar     = "E008" // Grammar is not a rule list
	ErrCodeBoard       = "E009" // Bad board snapshot or arguments
	ErrCodeMoves       = "E010" // Bad move file
	ErrCodeStore       = "E011" // Store read or write failed
	ErrCodeReplay      = "E012" // Replay diverged from a checkpoint
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeBuildFailed
	case field == "rules" || strings.HasPrefix(field, "rules["):
		return ErrCodeGrammar
	default:
		return ErrCodeGeneric
	}
}
