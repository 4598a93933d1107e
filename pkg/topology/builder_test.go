package topology

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/openlift/openlift/pkg/manifest"
)

// fakeProvisioner allocates predictable handles and records call order.
type fakeProvisioner struct {
	calls []string
}

func (f *fakeProvisioner) record(kind string, id LogicalID) {
	f.calls = append(f.calls, fmt.Sprintf("%s:%s", kind, id))
}

func (f *fakeProvisioner) Region() string { return "us-test-1" }

func (f *fakeProvisioner) ProvisionTable(_ context.Context, id LogicalID, _ *TableSpec) (TableHandle, error) {
	f.record("table", id)
	return TableHandle{Name: "tbl-" + string(id), Region: f.Region()}, nil
}

func (f *fakeProvisioner) ProvisionBucket(_ context.Context, id LogicalID, _ *BucketSpec) (BucketHandle, error) {
	f.record("bucket", id)
	return BucketHandle{Name: "bkt-" + string(id), Region: f.Region()}, nil
}

func (f *fakeProvisioner) ProvisionQueue(_ context.Context, id LogicalID, _ *QueueSpec) (QueueHandle, error) {
	f.record("queue", id)
	return QueueHandle{
		Name:   string(id) + ".fifo",
		URL:    "https://queue.example/" + string(id),
		Region: f.Region(),
	}, nil
}

func (f *fakeProvisioner) ProvisionFunction(_ context.Context, id LogicalID, spec *FunctionSpec) (FunctionHandle, error) {
	f.record("function", id)
	if spec.ExistingHandle != "" {
		return FunctionHandle{Name: spec.ExistingHandle, EndpointURL: "https://" + spec.ExistingHandle + ".example"}, nil
	}
	return FunctionHandle{Name: "fn-" + string(id), EndpointURL: "https://" + string(id) + ".example"}, nil
}

func (f *fakeProvisioner) ProvisionDistribution(_ context.Context, id LogicalID, _ *DistributionSpec) (DistributionHandle, error) {
	f.record("distribution", id)
	return DistributionHandle{ID: "D123", Domain: "d123.dist.example"}, nil
}

func fullManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Version: "3",
		Origins: map[string]manifest.Origin{
			"default": {Type: manifest.OriginTypeCompute, Bundle: "server-functions/default", Handler: "index.handler"},
			"assets": {
				Type:       manifest.OriginTypeStaticAssets,
				OriginPath: "/assets",
				Copy: []manifest.CopyEntry{
					{From: "assets", To: "assets", Cached: true, VersionedSubDir: "v1"},
				},
			},
			"imageOptimizer": {Type: manifest.OriginTypeCompute, Bundle: "image-optimization-function", Handler: "index.handler"},
			"api":            {Type: manifest.OriginTypeCompute, Bundle: "server-functions/api", Handler: "index.handler"},
			"ws":             {Type: manifest.OriginTypeCompute, Bundle: "server-functions/ws", Handler: "index.handler"},
		},
		Behaviors: []manifest.Behavior{
			{Pattern: "assets/*", Origin: "assets"},
			{Pattern: "_image/*", Origin: "imageOptimizer"},
			{Pattern: "api/*", Origin: "api"},
			{Pattern: "ws/*", Origin: "ws"},
			{Pattern: "*", Origin: "default"},
		},
		AdditionalProps: &manifest.AdditionalProps{
			InitializationFunction: &manifest.BundleRef{Bundle: "init-function", Handler: "index.handler"},
			Warmer:                 &manifest.BundleRef{Bundle: "warmer-function", Handler: "index.handler"},
			RevalidationFunction:   &manifest.BundleRef{Bundle: "revalidation-function", Handler: "index.handler"},
		},
	}
}

func buildGraph(t *testing.T, m *manifest.Manifest, o *Overrides) (*ResourceGraph, *fakeProvisioner) {
	t.Helper()
	prov := &fakeProvisioner{}
	b := NewBuilder(m, o, prov, BuilderOptions{})
	graph, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	if err := graph.Resolve(); err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	return graph, prov
}

func TestBuild_ConstructionOrder(t *testing.T) {
	graph, _ := buildGraph(t, fullManifest(), nil)

	want := []LogicalID{
		IDTagCacheTable,
		IDBucketAccessControl,
		IDCacheBucket,
		IDRevalidationQueue,
		IDRevalidationFn,
		IDSeederFn,
		IDDefaultFn,
		SplitFunctionID("api"),
		SplitFunctionID("ws"),
		IDImageOptimizerFn,
		IDLogPipeline,
		IDDistribution,
		IDAssetUpload,
		IDWarmerFn,
	}

	if len(graph.Nodes) != len(want) {
		t.Fatalf("expected %d nodes, got %d", len(want), len(graph.Nodes))
	}
	for i, id := range want {
		if graph.Nodes[i].ID != id {
			t.Errorf("node %d = %s, want %s", i, graph.Nodes[i].ID, id)
		}
	}
}

func TestBuild_SplitOriginMap(t *testing.T) {
	graph, _ := buildGraph(t, fullManifest(), nil)

	defaultFn := graph.Node(IDDefaultFn)
	if defaultFn == nil {
		t.Fatal("missing default function")
	}

	raw, err := defaultFn.Function.Env[EnvSplitOriginMap].Resolve()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var splitMap map[string]string
	if err := json.Unmarshal([]byte(raw), &splitMap); err != nil {
		t.Fatalf("split-origin map is not valid JSON: %v", err)
	}
	if len(splitMap) != 2 {
		t.Errorf("split map has %d keys, want 2", len(splitMap))
	}
	if _, ok := splitMap["default"]; ok {
		t.Error("split map must never contain the default key")
	}
	for _, key := range []string{"api", "ws"} {
		if splitMap[key] == "" {
			t.Errorf("split map missing endpoint for %q", key)
		}
	}

	// Split functions themselves never receive the map.
	for _, key := range []string{"api", "ws"} {
		node := graph.Node(SplitFunctionID(key))
		if node == nil {
			t.Fatalf("missing split function %q", key)
		}
		if _, ok := node.Function.Env[EnvSplitOriginMap]; ok {
			t.Errorf("split function %q must not receive the split-origin map", key)
		}
	}
}

func TestBuild_NoSplits(t *testing.T) {
	m := fullManifest()
	delete(m.Origins, "api")
	delete(m.Origins, "ws")
	m.Behaviors = []manifest.Behavior{
		{Pattern: "assets/*", Origin: "assets"},
		{Pattern: "*", Origin: "default"},
	}

	graph, _ := buildGraph(t, m, nil)

	defaultFn := graph.Node(IDDefaultFn)
	if _, ok := defaultFn.Function.Env[EnvSplitOriginMap]; ok {
		t.Error("split-origin map must be absent without split origins")
	}
	for _, node := range graph.Functions() {
		if node.Function.Role.Kind == RoleSplitCompute {
			t.Errorf("unexpected split function %s", node.ID)
		}
	}
}

func TestBuild_TagCacheDisabled(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*manifest.Manifest)
		overrides *Overrides
	}{
		{
			name: "manifest flag",
			mutate: func(m *manifest.Manifest) {
				m.AdditionalProps.DisableTagCache = true
			},
		},
		{
			name:      "caller flag",
			mutate:    func(*manifest.Manifest) {},
			overrides: &Overrides{DisableTagCache: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := fullManifest()
			tt.mutate(m)
			graph, _ := buildGraph(t, m, tt.overrides)

			if graph.Node(IDTagCacheTable) != nil {
				t.Error("no table resource may be produced when the tag cache is disabled")
			}
			if graph.Node(IDSeederFn) != nil {
				t.Error("no seeder may be produced when the tag cache is disabled")
			}
			for _, node := range graph.Functions() {
				if _, ok := node.Function.Env[EnvCacheTableName]; ok {
					t.Errorf("function %s carries a table variable with the tag cache disabled", node.ID)
				}
			}
		})
	}
}

func TestBuild_SeederIffEligible(t *testing.T) {
	withInit := fullManifest()
	graph, _ := buildGraph(t, withInit, nil)
	seeder := graph.Node(IDSeederFn)
	if seeder == nil {
		t.Fatal("seeder must exist when eligible")
	}
	if _, ok := seeder.Function.Env[EnvSeedTriggerToken]; !ok {
		t.Error("seeder must carry a trigger token")
	}

	withoutInit := fullManifest()
	withoutInit.AdditionalProps.InitializationFunction = nil
	graph2, _ := buildGraph(t, withoutInit, nil)
	if graph2.Node(IDSeederFn) != nil {
		t.Error("no seeder may exist without an initialization function")
	}
}

func TestBuild_SeederTokenChangesPerBuild(t *testing.T) {
	graph1, _ := buildGraph(t, fullManifest(), nil)
	graph2, _ := buildGraph(t, fullManifest(), nil)

	token1, _ := graph1.Node(IDSeederFn).Function.Env[EnvSeedTriggerToken].Resolve()
	token2, _ := graph2.Node(IDSeederFn).Function.Env[EnvSeedTriggerToken].Resolve()
	if token1 == token2 {
		t.Error("seeder trigger token must change between builds")
	}
}

func TestBuild_EdgeFunctionsWarnOnce(t *testing.T) {
	m := fullManifest()
	m.EdgeFunctions = map[string]json.RawMessage{
		"auth":    json.RawMessage(`{}`),
		"rewrite": json.RawMessage(`{}`),
	}

	graph, _ := buildGraph(t, m, nil)

	count := 0
	for _, w := range graph.Warnings {
		if strings.Contains(w, "edge functions") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one edge-function warning, got %d", count)
	}
}

func TestBuild_Outputs(t *testing.T) {
	graph, _ := buildGraph(t, fullManifest(), nil)

	if graph.Outputs.DistributionDomain != "d123.dist.example" {
		t.Errorf("distribution domain = %q", graph.Outputs.DistributionDomain)
	}
	if graph.Outputs.DistributionID != "D123" {
		t.Errorf("distribution ID = %q", graph.Outputs.DistributionID)
	}
	if graph.Outputs.BucketName != "bkt-cache-bucket" {
		t.Errorf("bucket name = %q", graph.Outputs.BucketName)
	}
	if graph.BuildID == "" {
		t.Error("build ID must be set")
	}
	if graph.ManifestVersion != "3" {
		t.Errorf("manifest version = %q", graph.ManifestVersion)
	}
}

func TestBuild_FunctionOverrides(t *testing.T) {
	o := &Overrides{
		Functions: map[string]FunctionOverride{
			"default": {
				MemoryMB:       2048,
				TimeoutSeconds: 29,
				Environment: map[string]string{
					"EXTRA_VAR": "extra",
					EnvQueueURL: "caller-supplied",
				},
			},
		},
	}
	graph, _ := buildGraph(t, fullManifest(), o)

	fn := graph.Node(IDDefaultFn).Function
	if fn.MemoryMB != 2048 {
		t.Errorf("memory = %d, want 2048", fn.MemoryMB)
	}
	if fn.TimeoutSeconds != 29 {
		t.Errorf("timeout = %d, want 29", fn.TimeoutSeconds)
	}

	extra, _ := fn.Env["EXTRA_VAR"].Resolve()
	if extra != "extra" {
		t.Error("caller environment variables must be added")
	}
	queueURL, _ := fn.Env[EnvQueueURL].Resolve()
	if queueURL != "https://queue.example/revalidation-queue" {
		t.Error("composed variables must win over caller-supplied ones")
	}
}

func TestBuild_WarmerTargets(t *testing.T) {
	graph, _ := buildGraph(t, fullManifest(), nil)

	warmer := graph.Node(IDWarmerFn)
	if warmer == nil {
		t.Fatal("warmer must exist when the manifest declares one")
	}

	raw, err := warmer.Function.Env[EnvWarmTargets].Resolve()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var targets []string
	if err := json.Unmarshal([]byte(raw), &targets); err != nil {
		t.Fatalf("warm targets is not valid JSON: %v", err)
	}
	// default + two splits
	if len(targets) != 3 {
		t.Errorf("warm targets = %v, want 3 entries", targets)
	}

	disabled, _ := buildGraph(t, fullManifest(), &Overrides{DisableWarmer: true})
	if disabled.Node(IDWarmerFn) != nil {
		t.Error("warmer must be skipped when disabled by the caller")
	}
}

func TestBuild_AssetUpload(t *testing.T) {
	graph, _ := buildGraph(t, fullManifest(), nil)

	upload := graph.Node(IDAssetUpload)
	if upload == nil {
		t.Fatal("asset upload must exist when the assets origin has copy entries")
	}
	if upload.AssetUpload.Distribution != IDDistribution {
		t.Error("asset upload must reference the distribution for invalidation")
	}
	if len(upload.AssetUpload.Entries) != 1 {
		t.Fatalf("expected 1 copy entry, got %d", len(upload.AssetUpload.Entries))
	}
	entry := upload.AssetUpload.Entries[0]
	if entry.From != "assets" || !entry.Cached || entry.VersionedSubDir != "v1" {
		t.Errorf("unexpected entry %+v", entry)
	}
}

func TestBuild_DNSAndAlarms(t *testing.T) {
	o := &Overrides{
		EnableAlarms: true,
		Routing: RoutingOverrides{
			CustomDomains: []string{"example.com", "www.example.com"},
		},
	}
	graph, _ := buildGraph(t, fullManifest(), o)

	var dns, alarms int
	for _, node := range graph.Nodes {
		switch node.Kind {
		case KindDNSRecord:
			dns++
		case KindAlarm:
			alarms++
		}
	}
	if dns != 2 {
		t.Errorf("expected 2 DNS records, got %d", dns)
	}
	if alarms == 0 {
		t.Error("expected alarm nodes when alarms are enabled")
	}

	dist := graph.Node(IDDistribution)
	if len(dist.Distribution.CustomDomains) != 2 {
		t.Error("distribution must carry the custom domains")
	}

	noDNS, _ := buildGraph(t, fullManifest(), &Overrides{
		DisableDNS: true,
		Routing:    RoutingOverrides{CustomDomains: []string{"example.com"}},
	})
	for _, node := range noDNS.Nodes {
		if node.Kind == KindDNSRecord {
			t.Error("DNS records must be skipped when disabled")
		}
	}
}

func TestBuild_AccessControlAndLogsToggles(t *testing.T) {
	graph, _ := buildGraph(t, fullManifest(), &Overrides{
		DisableAccessControl: true,
		DisableAccessLogs:    true,
	})

	if graph.Node(IDBucketAccessControl) != nil {
		t.Error("access control must be skipped when disabled")
	}
	if graph.Node(IDLogPipeline) != nil {
		t.Error("log pipeline must be skipped when disabled")
	}
	if graph.Node(IDCacheBucket).Bucket.AccessControl != "" {
		t.Error("bucket must not reference a skipped access-control layer")
	}
	if graph.Node(IDDistribution).Distribution.LogPipeline != "" {
		t.Error("distribution must not reference a skipped log pipeline")
	}
}

func TestBuild_BuilderSingleUse(t *testing.T) {
	prov := &fakeProvisioner{}
	b := NewBuilder(fullManifest(), nil, prov, BuilderOptions{})
	if _, err := b.Build(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := b.Build(context.Background()); err == nil {
		t.Fatal("expected second build to fail")
	}
}
