package config

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// schemaLoader compiles a CUE schema and checks configuration values
// against it.
type schemaLoader struct {
	ctx    *cue.Context
	schema cue.Value
}

func newSchemaLoader() *schemaLoader {
	return &schemaLoader{ctx: cuecontext.New()}
}

// LoadFile compiles the schema in path.
func (l *schemaLoader) LoadFile(path string) error {
	content, err := safeReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	return l.compile(content, path)
}

// LoadContent compiles an inline schema.
func (l *schemaLoader) LoadContent(content string) error {
	if content == "" {
		return errors.New("schema content cannot be empty")
	}
	return l.compile([]byte(content), "inline-schema")
}

func (l *schemaLoader) compile(content []byte, filename string) error {
	v := l.ctx.CompileBytes(content, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return fmt.Errorf("invalid CUE schema: %w", err)
	}
	l.schema = v
	return nil
}

// Resolve unifies values with the schema, checks that the result is
// concrete and returns it with schema defaults filled in.
func (l *schemaLoader) Resolve(values map[string]any) (map[string]any, error) {
	if !l.schema.Exists() {
		return nil, errors.New("no schema loaded")
	}
	if values == nil {
		values = map[string]any{}
	}

	encoded := l.ctx.Encode(values)
	if err := encoded.Err(); err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}

	unified := l.schema.Unify(encoded)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	var out map[string]any
	if err := unified.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// Validate checks values against the schema without keeping the result.
func (l *schemaLoader) Validate(values map[string]any) error {
	_, err := l.Resolve(values)
	return err
}
