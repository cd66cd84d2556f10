package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
)

// maxConfigSize caps configuration and schema files.
const maxConfigSize = 10 * 1024 * 1024

// loadValues reads path (when set) and resolves it against the schema.
func loadValues(schema *schemaLoader, path string) (map[string]any, error) {
	var user map[string]any
	if path != "" {
		var err error
		if user, err = readConfigFile(path); err != nil {
			return nil, err
		}
	}
	return schema.Resolve(user)
}

// readConfigFile parses a YAML or JSON file after environment expansion.
func readConfigFile(path string) (map[string]any, error) {
	content, err := safeReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	content = expandEnv(content)
	if !hasContent(content) {
		return map[string]any{}, nil
	}

	ctx := cuecontext.New()
	var value cue.Value

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		file, err := yaml.Extract(path, content)
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
		value = ctx.BuildFile(file)
	case ".json":
		value = ctx.CompileBytes(content, cue.Filename(path))
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}

	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("failed to build config %s: %w", path, err)
	}

	var out map[string]any
	if err := value.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return out, nil
}

// hasContent reports whether a file holds anything besides blank lines and
// comments.
func hasContent(content []byte) bool {
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return true
		}
	}
	return false
}

// expandEnv substitutes $VAR, ${VAR} and ${VAR:-default}. Unset variables
// without a default expand to the empty string.
func expandEnv(content []byte) []byte {
	return []byte(os.Expand(string(content), func(expr string) string {
		name, def, hasDefault := strings.Cut(expr, ":-")
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	}))
}

// valueAtPath walks a dot-separated path through nested maps.
func valueAtPath(data map[string]any, path string) (any, error) {
	if path == "" {
		return data, nil
	}

	current := data
	parts := strings.Split(path, ".")
	for i, part := range parts {
		value, ok := current[part]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		if i == len(parts)-1 {
			return value, nil
		}
		next, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %s: cannot navigate through non-map value", path)
		}
		current = next
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
}

func copyMap(original map[string]any) map[string]any {
	out := make(map[string]any, len(original))
	for k, v := range original {
		if mv, ok := v.(map[string]any); ok {
			out[k] = copyMap(mv)
		} else {
			out[k] = v
		}
	}
	return out
}

// safeReadFile reads a regular file after refusing traversal, system paths
// and oversized files.
func safeReadFile(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return nil, errors.New("invalid file path: contains directory traversal")
	}
	if filepath.IsAbs(cleanPath) {
		for _, dir := range []string{"/etc/passwd", "/etc/shadow", "/proc/", "/sys/"} {
			if strings.HasPrefix(cleanPath, dir) {
				return nil, fmt.Errorf("access to system path not allowed: %s", dir)
			}
		}
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("file validation failed: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.New("path must be a regular file")
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), maxConfigSize)
	}

	return os.ReadFile(cleanPath)
}
