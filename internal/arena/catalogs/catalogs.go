package catalogs

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bouncearena.dev/internal/arena/chunks"
	"bouncearena.dev/internal/arena/schemas"
)

// File is the on-disk shape of a chunk library file.
type File struct {
	ProfileResolution int             `json:"profile_resolution,omitempty"`
	Chunks            []chunks.Schema `json:"chunks"`
}

// Load reads <configDir>/chunks.json followed by every <configDir>/chunks/*.json
// in lexical order. Library order is file order, then order within a file.
func Load(configDir string) (*chunks.Library, error) {
	var paths []string
	single := filepath.Join(configDir, "chunks.json")
	if _, err := os.Stat(single); err == nil {
		paths = append(paths, single)
	}
	dir := filepath.Join(configDir, "chunks")
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		var names []string
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if strings.HasSuffix(d.Name(), ".json") {
				names = append(names, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(names)
		paths = append(paths, names...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no chunk library in %s (want chunks.json or chunks/*.json)", configDir)
	}
	return LoadFiles(paths...)
}

func LoadFiles(paths ...string) (*chunks.Library, error) {
	var all []chunks.Schema
	declared := 0
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		f, err := Parse(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		if f.ProfileResolution != 0 {
			if declared != 0 && declared != f.ProfileResolution {
				return nil, fmt.Errorf("%s: profile_resolution %d, want %d", filepath.Base(p), f.ProfileResolution, declared)
			}
			declared = f.ProfileResolution
		}
		all = append(all, f.Chunks...)
	}
	lib, err := chunks.NewLibrary(all)
	if err != nil {
		return nil, err
	}
	if declared != 0 && len(all) > 0 && lib.ProfileResolution != declared {
		return nil, fmt.Errorf("profile_resolution %d declared, chunks use %d", declared, lib.ProfileResolution)
	}
	if declared != 0 {
		lib.ProfileResolution = declared
	}
	return lib, nil
}

// Parse validates one library file against the chunk library schema and
// decodes it.
func Parse(raw []byte) (File, error) {
	var f File
	if err := schemas.Validate(schemas.ChunkLibraryURL, raw); err != nil {
		return f, err
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, err
	}
	return f, nil
}

// Write stores a library as a single chunks.json-format file.
func Write(path string, lib *chunks.Library) error {
	f := File{ProfileResolution: lib.ProfileResolution, Chunks: lib.Schemas}
	if f.Chunks == nil {
		f.Chunks = []chunks.Schema{}
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
