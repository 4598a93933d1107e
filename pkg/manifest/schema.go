package manifest

import (
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages the embedded CUE schemas used to validate decoded
// manifests beyond what struct tags can express.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a schema registry with the built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	sr.registerBuiltInSchemas()
	return sr
}

func (sr *SchemaRegistry) registerBuiltInSchemas() {
	_ = sr.RegisterSchema("manifest", builtinManifestSchema)
	_ = sr.RegisterSchema("origin", builtinOriginSchema)
	_ = sr.RegisterSchema("behavior", builtinBehaviorSchema)
}

// RegisterSchema compiles and registers a CUE schema under the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateManifest validates a decoded manifest against the manifest schema.
func (sr *SchemaRegistry) ValidateManifest(m *Manifest) error {
	return sr.validateAgainst("manifest", "#Manifest", m)
}

// ValidateOrigin validates a single origin against the origin schema.
func (sr *SchemaRegistry) ValidateOrigin(o Origin) error {
	return sr.validateAgainst("origin", "#Origin", o)
}

// ValidateBehavior validates a single behavior against the behavior schema.
func (sr *SchemaRegistry) ValidateBehavior(b Behavior) error {
	return sr.validateAgainst("behavior", "#Behavior", b)
}

func (sr *SchemaRegistry) validateAgainst(name, definition string, data interface{}) error {
	schema, ok := sr.GetSchema(name)
	if !ok {
		return fmt.Errorf("schema %s not found", name)
	}

	def := schema.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema %s has no definition %s", name, definition)
	}

	// Round-trip through JSON so omitempty fields disappear instead of
	// encoding as null, which would not unify with optional schema fields.
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}
	dataVal := sr.ctx.CompileBytes(raw)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := def.Unify(dataVal)
	if err := unified.Validate(); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// Built-in schema definitions. These intentionally stay permissive about
// unknown keys so that newer build pipelines can add fields without breaking
// older deploy tooling.

const builtinManifestSchema = `
#Manifest: {
	version?: string
	routes?: [...{
		route:  string
		regex?: string
		...
	}]
	origins: {[string]: #Origin}
	behaviors: [...#Behavior]
	additionalProps?: {
		disableTagCache?:         bool
		disableIncrementalCache?: bool
		initializationFunction?:  #BundleRef
		warmer?:                  #BundleRef
		revalidationFunction?:    #BundleRef
		...
	}
	edgeFunctions?: {[string]: _}
	...
}

#Origin: {
	type: "static-assets" | "compute"
	copy?: [...{
		from:             string
		to?:              string
		cached?:          bool
		versionedSubDir?: string
		...
	}]
	handler?:    string
	bundle?:     string
	streaming?:  bool
	originPath?: string
	...
}

#Behavior: {
	pattern:       string
	origin?:       string
	edgeFunction?: string
	...
}

#BundleRef: {
	handler?: string
	bundle?:  string
	...
}
`

const builtinOriginSchema = `
#Origin: {
	type: "static-assets" | "compute"
	handler?:    string
	bundle?:     string
	streaming?:  bool
	originPath?: string
	...
}
`

const builtinBehaviorSchema = `
#Behavior: {
	pattern:       string
	origin?:       string
	edgeFunction?: string
	...
}
`
