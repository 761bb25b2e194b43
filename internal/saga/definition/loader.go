package definition

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fiberline/switchyard/internal/log"
)

// LoadBuiltins loads all built-in definitions from the embedded filesystem.
func LoadBuiltins() ([]*Definition, error) {
	fsys, err := BuiltinFS()
	if err != nil {
		return nil, fmt.Errorf("opening embedded definitions: %w", err)
	}
	return loadFromFS(fsys, ".", SourceBuiltIn)
}

func loadFromFS(fsys fs.FS, dir string, source Source) ([]*Definition, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading definitions directory: %w", err)
	}

	var defs []*Definition
	for _, entry := range entries {
		if entry.IsDir() || !isDefinitionFile(entry.Name()) {
			continue
		}

		// path.Join, not filepath.Join: embedded filesystems always use
		// forward slashes.
		fsPath := path.Join(dir, entry.Name())
		content, err := fs.ReadFile(fsys, fsPath)
		if err != nil {
			return nil, fmt.Errorf("reading definition %s: %w", fsPath, err)
		}

		def, err := Parse(content, entry.Name(), source)
		if err != nil {
			if source == SourceBuiltIn {
				// A broken builtin is a packaging bug, not an operator error.
				return nil, err
			}
			log.Warn(log.CatSaga, "skipping invalid workflow definition",
				"file", entry.Name(), "error", err.Error())
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Parse decodes and validates a single YAML definition. A missing name is
// derived from the filename.
func Parse(content []byte, filename string, source Source) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(content, &def); err != nil {
		return nil, fmt.Errorf("parsing definition %s: %w", filename, err)
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(strings.TrimSuffix(filename, ".yaml"), ".yml")
	}
	def.Source = source
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

func isDefinitionFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// LoadUserFromDir loads operator-supplied definitions from a directory. A
// missing directory is not an error, just no user definitions. Invalid files
// are skipped with a warning so one bad file cannot take down a reload.
func LoadUserFromDir(dir string) ([]*Definition, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checking definitions directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("definitions path is not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading definitions directory: %w", err)
	}

	var defs []*Definition
	for _, entry := range entries {
		if entry.IsDir() || !isDefinitionFile(entry.Name()) {
			continue
		}
		filePath := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(filePath) //nolint:gosec // filePath is constructed from validated directory entries
		if err != nil {
			log.Warn(log.CatSaga, "skipping unreadable workflow definition",
				"file", filePath, "error", err.Error())
			continue
		}
		def, err := Parse(content, entry.Name(), SourceUser)
		if err != nil {
			log.Warn(log.CatSaga, "skipping invalid workflow definition",
				"file", filePath, "error", err.Error())
			continue
		}
		def.FilePath = filePath
		defs = append(defs, def)
	}
	return defs, nil
}
