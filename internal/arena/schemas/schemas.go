// Package schemas holds the JSON Schemas for designer-authored files.
package schemas

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	ChunkLibraryURL = "https://bouncearena.dev/schemas/chunk_library.schema.json"
	SoakConfigURL   = "https://bouncearena.dev/schemas/soak_config.schema.json"
)

//go:embed chunk_library.schema.json
var chunkLibraryJSON []byte

//go:embed soak_config.schema.json
var soakConfigJSON []byte

var (
	once     sync.Once
	compiled map[string]*jsonschema.Schema
	compErr  error
)

func compileAll() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	res := map[string][]byte{
		ChunkLibraryURL: chunkLibraryJSON,
		SoakConfigURL:   soakConfigJSON,
	}
	for url, b := range res {
		if err := c.AddResource(url, bytes.NewReader(b)); err != nil {
			compErr = fmt.Errorf("schema %s: %w", url, err)
			return
		}
	}
	compiled = map[string]*jsonschema.Schema{}
	for url := range res {
		s, err := c.Compile(url)
		if err != nil {
			compErr = fmt.Errorf("schema %s: %w", url, err)
			return
		}
		compiled[url] = s
	}
}

// Validate checks raw JSON against the schema registered under url.
func Validate(url string, raw []byte) error {
	once.Do(compileAll)
	if compErr != nil {
		return compErr
	}
	s, ok := compiled[url]
	if !ok {
		return fmt.Errorf("unknown schema %s", url)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return s.Validate(v)
}
