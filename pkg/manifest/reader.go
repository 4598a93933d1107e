package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Reader loads and validates build manifests.
type Reader struct {
	validator *validator.Validate
	schemas   *SchemaRegistry
}

// NewReader creates a manifest reader with the built-in schema registry.
func NewReader() *Reader {
	return &Reader{
		validator: validator.New(),
		schemas:   NewSchemaRegistry(),
	}
}

// Read loads the manifest from the given build-output directory, validates
// it, and normalizes it to the canonical internal shape. It fails with a
// not-found error if the manifest file is absent, a parse error on malformed
// JSON, and a validation error on structural violations.
func (r *Reader) Read(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newError(ErrCodeNotFound,
				"manifest not found; run the application build step before deploying", err).
				WithPath(path)
		}
		return nil, newError(ErrCodeNotFound, "manifest could not be read", err).WithPath(path)
	}

	return r.Parse(data, path)
}

// Parse decodes, validates, and normalizes raw manifest bytes. The path is
// used for error context only.
func (r *Reader) Parse(data []byte, path string) (*Manifest, error) {
	// Decode generically first so structural violations (origins not a
	// mapping, behaviors not a list) report as validation errors rather
	// than JSON type errors.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, newError(ErrCodeParse, "manifest is not valid JSON", err).WithPath(path)
	}

	if err := r.checkShape(raw); err != nil {
		if e, ok := err.(*Error); ok {
			return nil, e.WithPath(path)
		}
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, newError(ErrCodeParse, "manifest could not be decoded", err).WithPath(path)
	}

	if err := r.Validate(&m); err != nil {
		if e, ok := err.(*Error); ok {
			return nil, e.WithPath(path)
		}
		return nil, err
	}

	Normalize(&m)
	return &m, nil
}

// checkShape verifies the top-level JSON types before full decoding.
func (r *Reader) checkShape(raw map[string]json.RawMessage) error {
	origins, ok := raw["origins"]
	if !ok {
		return newError(ErrCodeValidation, "manifest has no origins", nil)
	}
	if !startsWith(origins, '{') {
		return newError(ErrCodeValidation, "manifest origins must be a mapping", nil)
	}

	behaviors, ok := raw["behaviors"]
	if !ok {
		return newError(ErrCodeValidation, "manifest has no behaviors", nil)
	}
	if !startsWith(behaviors, '[') {
		return newError(ErrCodeValidation, "manifest behaviors must be a list", nil)
	}

	return nil
}

// Validate checks a decoded manifest against the structural invariants, the
// struct tags, and the embedded schema.
func (r *Reader) Validate(m *Manifest) error {
	def, ok := m.Origins[KeyDefault]
	if !ok {
		return newError(ErrCodeValidation, "manifest has no default origin", nil)
	}
	if def.Type != OriginTypeCompute {
		return newError(ErrCodeValidation,
			fmt.Sprintf("default origin must be compute-typed, got %q", def.Type), nil)
	}

	if err := r.validator.Struct(m); err != nil {
		return newError(ErrCodeValidation, "manifest failed field validation", err)
	}

	for key, origin := range m.Origins {
		if err := r.validator.Struct(origin); err != nil {
			return newError(ErrCodeValidation,
				fmt.Sprintf("origin %q failed field validation", key), err)
		}
	}

	for i, behavior := range m.Behaviors {
		if err := r.validator.Struct(behavior); err != nil {
			return newError(ErrCodeValidation,
				fmt.Sprintf("behavior %d failed field validation", i), err)
		}
	}

	if err := r.schemas.ValidateManifest(m); err != nil {
		return newError(ErrCodeValidation, "manifest failed schema validation", err)
	}

	return nil
}

// Normalize rewrites every copy and bundle path to be relative to the
// build-output directory by stripping the historical build-root prefix.
// Paths without the prefix pass through unchanged, so normalizing twice
// yields the same result.
func Normalize(m *Manifest) {
	for key, origin := range m.Origins {
		origin.Bundle = StripBuildRoot(origin.Bundle)
		for i := range origin.Copy {
			origin.Copy[i].From = StripBuildRoot(origin.Copy[i].From)
		}
		m.Origins[key] = origin
	}

	if m.AdditionalProps == nil {
		return
	}
	normalizeBundleRef(m.AdditionalProps.InitializationFunction)
	normalizeBundleRef(m.AdditionalProps.Warmer)
	normalizeBundleRef(m.AdditionalProps.RevalidationFunction)
}

// StripBuildRoot removes the build-root prefix from a path, if present.
func StripBuildRoot(path string) string {
	return strings.TrimPrefix(path, BuildRootPrefix)
}

func normalizeBundleRef(ref *BundleRef) {
	if ref == nil {
		return
	}
	ref.Bundle = StripBuildRoot(ref.Bundle)
}

// startsWith reports whether the raw JSON value begins with the given byte,
// ignoring leading whitespace.
func startsWith(raw json.RawMessage, b byte) bool {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return c == b
		}
	}
	return false
}
