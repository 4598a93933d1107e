package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

const validManifest = `{
	"version": "3",
	"routes": [{"route": "/api/users/[id]", "regex": "^/api/users/([^/]+)$"}],
	"origins": {
		"default": {"type": "compute", "handler": "index.handler", "bundle": ".openlift/server-functions/default"},
		"assets": {"type": "static-assets", "originPath": "_assets", "copy": [
			{"from": ".openlift/assets", "to": "_assets", "cached": true}
		]},
		"imageOptimizer": {"type": "compute", "handler": "index.handler", "bundle": ".openlift/image-optimization-function"},
		"api": {"type": "compute", "handler": "index.handler", "bundle": ".openlift/server-functions/api"}
	},
	"behaviors": [
		{"pattern": "_assets/*", "origin": "assets"},
		{"pattern": "_image*", "origin": "imageOptimizer"},
		{"pattern": "api/*", "origin": "api"},
		{"pattern": "*", "origin": "default"}
	],
	"additionalProps": {
		"initializationFunction": {"handler": "index.handler", "bundle": ".openlift/initialization-function"}
	}
}`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}
	return dir
}

func TestReader_Read_Valid(t *testing.T) {
	dir := writeManifest(t, validManifest)

	m, err := NewReader().Read(dir)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if m.Version != "3" {
		t.Errorf("Expected version 3, got %q", m.Version)
	}
	if len(m.Origins) != 4 {
		t.Errorf("Expected 4 origins, got %d", len(m.Origins))
	}
	if len(m.Behaviors) != 4 {
		t.Errorf("Expected 4 behaviors, got %d", len(m.Behaviors))
	}
}

func TestReader_Read_NotFound(t *testing.T) {
	dir := t.TempDir()

	_, err := NewReader().Read(dir)
	if err == nil {
		t.Fatal("Expected an error for missing manifest")
	}
	if !IsNotFound(err) {
		t.Errorf("Expected not-found error, got: %v", err)
	}
}

func TestReader_Read_MalformedJSON(t *testing.T) {
	dir := writeManifest(t, `{"origins": {`)

	_, err := NewReader().Read(dir)
	if !IsParseError(err) {
		t.Errorf("Expected parse error, got: %v", err)
	}
}

func TestReader_Read_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing origins",
			content: `{"behaviors": []}`,
		},
		{
			name:    "origins not a mapping",
			content: `{"origins": [], "behaviors": []}`,
		},
		{
			name:    "missing behaviors",
			content: `{"origins": {"default": {"type": "compute"}}}`,
		},
		{
			name:    "behaviors not a list",
			content: `{"origins": {"default": {"type": "compute"}}, "behaviors": {}}`,
		},
		{
			name:    "missing default origin",
			content: `{"origins": {"assets": {"type": "static-assets"}}, "behaviors": []}`,
		},
		{
			name:    "default origin not compute",
			content: `{"origins": {"default": {"type": "static-assets"}}, "behaviors": []}`,
		},
		{
			name:    "unknown origin type",
			content: `{"origins": {"default": {"type": "compute"}, "x": {"type": "edge"}}, "behaviors": []}`,
		},
	}

	reader := NewReader()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeManifest(t, tt.content)
			_, err := reader.Read(dir)
			if !IsValidationError(err) {
				t.Errorf("Expected validation error, got: %v", err)
			}
		})
	}
}

func TestReader_Read_LegacyShape(t *testing.T) {
	// Legacy manifests omit version and routes entirely.
	dir := writeManifest(t, `{
		"origins": {"default": {"type": "compute", "handler": "index.handler", "bundle": "server-function"}},
		"behaviors": [{"pattern": "*", "origin": "default"}]
	}`)

	m, err := NewReader().Read(dir)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if m.Version != "" {
		t.Errorf("Expected empty version, got %q", m.Version)
	}
	if m.Origins[KeyDefault].Bundle != "server-function" {
		t.Errorf("Unprefixed bundle path should pass through, got %q", m.Origins[KeyDefault].Bundle)
	}
}

func TestReader_Read_NormalizesPaths(t *testing.T) {
	dir := writeManifest(t, validManifest)

	m, err := NewReader().Read(dir)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got := m.Origins[KeyDefault].Bundle; got != "server-functions/default" {
		t.Errorf("Expected stripped bundle path, got %q", got)
	}
	if got := m.Origins[KeyAssets].Copy[0].From; got != "assets" {
		t.Errorf("Expected stripped copy path, got %q", got)
	}
	if got := m.AdditionalProps.InitializationFunction.Bundle; got != "initialization-function" {
		t.Errorf("Expected stripped seeder bundle path, got %q", got)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	dir := writeManifest(t, validManifest)

	m, err := NewReader().Read(dir)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	before := m.Origins[KeyDefault].Bundle
	Normalize(m)
	if after := m.Origins[KeyDefault].Bundle; after != before {
		t.Errorf("Normalizing twice changed %q to %q", before, after)
	}
}

func TestStripBuildRoot(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{".openlift/assets", "assets"},
		{"assets", "assets"},
		{"", ""},
		{".openlift/.openlift/x", ".openlift/x"},
		{"nested/.openlift/x", "nested/.openlift/x"},
	}

	for _, tt := range tests {
		if got := StripBuildRoot(tt.in); got != tt.want {
			t.Errorf("StripBuildRoot(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestManifest_SplitKeys(t *testing.T) {
	m := &Manifest{
		Origins: map[string]Origin{
			KeyDefault:        {Type: OriginTypeCompute},
			KeyAssets:         {Type: OriginTypeStaticAssets},
			KeyImageOptimizer: {Type: OriginTypeCompute},
			"docs":            {Type: OriginTypeStaticAssets},
			"checkout":        {Type: OriginTypeCompute},
			"api":             {Type: OriginTypeCompute},
		},
	}

	keys := m.SplitKeys()
	if len(keys) != 2 {
		t.Fatalf("Expected 2 split keys, got %d: %v", len(keys), keys)
	}
	if keys[0] != "api" || keys[1] != "checkout" {
		t.Errorf("Expected sorted split keys [api checkout], got %v", keys)
	}
}
