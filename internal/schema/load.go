package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/afero"

	"github.com/roach88/litequery/internal/model"
)

// Loader reads model files into registries.
type Loader struct {
	fs              afero.Fs
	caseInsensitive bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithFs reads files from fs instead of the OS filesystem.
//
// A directory of CUE files is built with the cue package loader only on the
// OS filesystem. Elsewhere each file is compiled on its own, so files cannot
// reference each other.
func WithFs(fs afero.Fs) Option {
	return func(l *Loader) {
		l.fs = fs
	}
}

// WithCaseInsensitive sets the pattern-matching default for models that do
// not declare caseInsensitive.
func WithCaseInsensitive(ci bool) Option {
	return func(l *Loader) {
		l.caseInsensitive = ci
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load is NewLoader(opts...).Load(path).
func Load(path string, opts ...Option) (*model.Registry, error) {
	return NewLoader(opts...).Load(path)
}

// Load reads path, a single .cue/.yaml/.yml file or a directory of them,
// into a new registry.
func (l *Loader) Load(path string) (*model.Registry, error) {
	info, err := l.fs.Stat(path)
	if os.IsNotExist(err) {
		return nil, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("models path not found: %s", path)}
	}
	if err != nil {
		return nil, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing models path: %v", err)}
	}

	reg := model.NewRegistry()
	if !info.IsDir() {
		defs, err := l.loadFile(path)
		if err != nil {
			return nil, err
		}
		if err := register(reg, defs, path, l.caseInsensitive); err != nil {
			return nil, err
		}
		return reg, nil
	}

	cueFiles, yamlFiles, err := l.findModelFiles(path)
	if err != nil {
		return nil, &Error{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 && len(yamlFiles) == 0 {
		return nil, &Error{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no model files found in %s", path)}
	}

	if len(cueFiles) > 0 {
		defs, err := l.loadCUEDir(path, cueFiles)
		if err != nil {
			return nil, err
		}
		if err := register(reg, defs, path, l.caseInsensitive); err != nil {
			return nil, err
		}
	}
	for _, file := range yamlFiles {
		defs, err := l.loadFile(file)
		if err != nil {
			return nil, err
		}
		if err := register(reg, defs, file, l.caseInsensitive); err != nil {
			return nil, err
		}
	}
	if reg.Len() == 0 {
		return nil, &Error{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no models declared in %s", path)}
	}
	return reg, nil
}

func (l *Loader) loadFile(path string) ([]Definition, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, &Error{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}
	switch filepath.Ext(path) {
	case ".cue":
		return compileCUEFile(cuecontext.New(), path, data)
	case ".yaml", ".yml":
		return ParseYAML(path, data)
	}
	return nil, &Error{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("%s: unsupported model file type", path)}
}

func (l *Loader) loadCUEDir(dir string, files []string) ([]Definition, error) {
	if _, ok := l.fs.(*afero.OsFs); ok {
		return loadCUEPackage(dir)
	}
	ctx := cuecontext.New()
	var defs []Definition
	for _, file := range files {
		data, err := afero.ReadFile(l.fs, file)
		if err != nil {
			return nil, &Error{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", file, err)}
		}
		fileDefs, err := compileCUEFile(ctx, file, data)
		if err != nil {
			return nil, err
		}
		defs = append(defs, fileDefs...)
	}
	return defs, nil
}

// findModelFiles lists the model files directly inside dir, sorted by name.
func (l *Loader) findModelFiles(dir string) (cueFiles, yamlFiles []string, err error) {
	entries, err := afero.ReadDir(l.fs, dir)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		switch filepath.Ext(e.Name()) {
		case ".cue":
			cueFiles = append(cueFiles, path)
		case ".yaml", ".yml":
			yamlFiles = append(yamlFiles, path)
		}
	}
	sort.Strings(cueFiles)
	sort.Strings(yamlFiles)
	return cueFiles, yamlFiles, nil
}
