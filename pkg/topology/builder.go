package topology

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openlift/openlift/pkg/manifest"
	"github.com/openlift/openlift/pkg/telemetry"
)

// Logical IDs of the singleton resource nodes. Per-role function IDs derive
// from these stems so rebuilding the same manifest yields the same graph.
const (
	IDTagCacheTable       LogicalID = "tag-cache-table"
	IDBucketAccessControl LogicalID = "bucket-access-control"
	IDCacheBucket         LogicalID = "cache-bucket"
	IDRevalidationQueue   LogicalID = "revalidation-queue"
	IDRevalidationFn      LogicalID = "revalidation-consumer"
	IDSeederFn            LogicalID = "seeder"
	IDDefaultFn           LogicalID = "server-default"
	IDImageOptimizerFn    LogicalID = "image-optimizer"
	IDLogPipeline         LogicalID = "log-pipeline"
	IDDistribution        LogicalID = "distribution"
	IDAssetUpload         LogicalID = "asset-upload"
	IDWarmerFn            LogicalID = "warmer"
)

// SplitFunctionID returns the logical ID of a split compute function.
func SplitFunctionID(key string) LogicalID {
	return LogicalID("server-" + key)
}

// Function sizing defaults per role. Caller overrides replace them.
const (
	serverMemoryMB        = 1024
	serverTimeoutSeconds  = 10
	imageMemoryMB         = 1536
	imageTimeoutSeconds   = 25
	revalidationMemoryMB  = 512
	revalidationTimeout   = 30
	seederMemoryMB        = 256
	seederTimeoutSeconds  = 300
	warmerMemoryMB        = 128
	warmerTimeoutSeconds  = 900
	defaultArchitecture   = "arm64"
	defaultRuntime        = "nodejs20.x"
	revalidationBundle    = "revalidation-function"
	revalidationHandler   = "index.handler"
	warmerHandler         = "index.handler"
)

// Builder compiles a validated manifest and the caller's overrides into a
// resource graph. One Builder performs exactly one build: the pipeline is a
// single synchronous pass with no parallelism, and the resource handles it
// records are immutable once written.
type Builder struct {
	manifest    *manifest.Manifest
	overrides   *Overrides
	provisioner Provisioner
	logger      zerolog.Logger
	metrics     *telemetry.Metrics

	flags    Flags
	arena    *arena
	composer envComposer
	warnings []string

	// targets maps origin keys to routing-target handles for the rule
	// synthesizer.
	targets map[string]TargetID

	// splitOrigins maps split keys to their endpoint URLs. The default
	// function's split-origin-map thunk reads it; the thunk must not run
	// before every split endpoint exists.
	splitOrigins map[string]string
	splitKeys    []string

	// computeFunctions records the physical names of the default and
	// split functions for the warmer.
	computeFunctions []string

	buildID string
	used    bool
}

// BuilderOptions carries the optional collaborators of a Builder.
type BuilderOptions struct {
	// Logger receives build diagnostics. Defaults to a no-op logger.
	Logger *zerolog.Logger

	// Metrics receives build metrics. Nil disables instrumentation.
	Metrics *telemetry.Metrics
}

// NewBuilder creates a builder for one compilation of the given manifest.
func NewBuilder(m *manifest.Manifest, overrides *Overrides, provisioner Provisioner, opts BuilderOptions) *Builder {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "topology-builder").Logger()
	}
	if overrides == nil {
		overrides = &Overrides{}
	}

	return &Builder{
		manifest:     m,
		overrides:    overrides,
		provisioner:  provisioner,
		logger:       logger,
		metrics:      opts.Metrics,
		arena:        newArena(),
		targets:      make(map[string]TargetID),
		splitOrigins: make(map[string]string),
		buildID:      uuid.NewString(),
	}
}

// Build runs the fixed construction sequence and returns the finished
// graph. The sequence is dependency-driven: later steps consume identifiers
// produced by earlier ones, so the order is load-bearing. Deferred values in
// the returned graph are evaluated by ResourceGraph.Resolve, not here.
func (b *Builder) Build(ctx context.Context) (*ResourceGraph, error) {
	if b.used {
		return nil, NewBuildError(ErrCodeInternal, "builder already consumed", nil)
	}
	b.used = true

	start := time.Now()
	b.metrics.BuildStarted()
	b.logger.Info().Str("build_id", b.buildID).Msg("Starting topology build")

	graph, err := b.build(ctx)
	if err != nil {
		b.metrics.BuildCompleted("failure", time.Since(start))
		return nil, err
	}

	b.metrics.BuildCompleted("success", time.Since(start))
	b.logger.Info().
		Str("build_id", b.buildID).
		Int("nodes", len(graph.Nodes)).
		Dur("duration", time.Since(start)).
		Msg("Topology build complete")
	return graph, nil
}

func (b *Builder) build(ctx context.Context) (*ResourceGraph, error) {
	b.flags = ResolveFlags(b.manifest, b.overrides)
	b.splitKeys = b.manifest.SplitKeys()
	b.composer = envComposer{flags: b.flags}

	if len(b.manifest.EdgeFunctions) > 0 {
		b.warn("manifest declares edge functions, which are not supported and will be ignored")
	}

	if err := b.buildTagCacheTable(ctx); err != nil { // step 1
		return nil, err
	}
	if err := b.buildAccessControl(); err != nil { // step 2
		return nil, err
	}
	if err := b.buildBucket(ctx); err != nil { // step 3
		return nil, err
	}
	if err := b.buildRevalidation(ctx); err != nil { // step 4
		return nil, err
	}
	if err := b.buildSeeder(ctx); err != nil { // step 5
		return nil, err
	}
	if err := b.buildDefaultFunction(ctx); err != nil { // step 6
		return nil, err
	}
	if err := b.buildSplitFunctions(ctx); err != nil { // steps 7 and 8
		return nil, err
	}
	if err := b.buildImageOptimizer(ctx); err != nil { // step 9
		return nil, err
	}
	if err := b.buildLogPipeline(); err != nil { // step 10
		return nil, err
	}
	distribution, err := b.buildDistribution(ctx) // step 11
	if err != nil {
		return nil, err
	}
	if err := b.buildAssetUpload(); err != nil { // step 12
		return nil, err
	}
	if err := b.buildAlarms(); err != nil { // step 13
		return nil, err
	}
	if err := b.buildDNSRecords(); err != nil { // step 14
		return nil, err
	}
	if err := b.buildWarmer(ctx); err != nil { // step 15
		return nil, err
	}

	graph := &ResourceGraph{
		BuildID:         b.buildID,
		ManifestVersion: b.manifest.Version,
		CreatedAt:       time.Now().UTC(),
		Nodes:           b.arena.list(),
		Outputs: Outputs{
			DistributionDomain: distribution.Domain,
			DistributionID:     distribution.ID,
			BucketName:         b.composer.bucket.Name,
		},
		Warnings: b.warnings,
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	return graph, nil
}

// buildTagCacheTable provisions the tag-cache table unless the resolved
// flags disable it. Every later consumer checks composer.table for nil
// rather than re-deriving the flag.
func (b *Builder) buildTagCacheTable(ctx context.Context) error {
	if b.flags.TagCacheDisabled {
		b.logger.Debug().Msg("Tag cache disabled, skipping table")
		return nil
	}

	spec := &TableSpec{HashKey: "tag", RangeKey: "path"}
	handle, err := b.provisioner.ProvisionTable(ctx, IDTagCacheTable, spec)
	if err != nil {
		return NewBuildError(ErrCodeProvision, "failed to provision tag-cache table", err).
			WithResource(IDTagCacheTable).WithStep("table")
	}

	b.composer.table = &handle
	b.composer.tableID = IDTagCacheTable
	return b.addNode(&ResourceNode{
		ID:           IDTagCacheTable,
		Kind:         KindTable,
		PhysicalName: handle.Name,
		Table:        spec,
	})
}

func (b *Builder) buildAccessControl() error {
	if b.overrides.DisableAccessControl {
		return nil
	}
	return b.addNode(&ResourceNode{
		ID:   IDBucketAccessControl,
		Kind: KindAccessControl,
	})
}

func (b *Builder) buildBucket(ctx context.Context) error {
	spec := &BucketSpec{}
	if b.arena.get(IDBucketAccessControl) != nil {
		spec.AccessControl = IDBucketAccessControl
	}

	handle, err := b.provisioner.ProvisionBucket(ctx, IDCacheBucket, spec)
	if err != nil {
		return NewBuildError(ErrCodeProvision, "failed to provision storage bucket", err).
			WithResource(IDCacheBucket).WithStep("bucket")
	}

	b.composer.bucket = handle
	b.composer.bucketID = IDCacheBucket
	node := &ResourceNode{
		ID:           IDCacheBucket,
		Kind:         KindBucket,
		PhysicalName: handle.Name,
		Bucket:       spec,
	}
	if spec.AccessControl != "" {
		node.DependsOn = []LogicalID{spec.AccessControl}
	}
	return b.addNode(node)
}

// buildRevalidation provisions the revalidation queue and its consumer
// function. The consumer always exists; when the manifest declares no
// revalidation bundle a conventional default is used.
func (b *Builder) buildRevalidation(ctx context.Context) error {
	queueSpec := &QueueSpec{FIFO: true}
	queueHandle, err := b.provisioner.ProvisionQueue(ctx, IDRevalidationQueue, queueSpec)
	if err != nil {
		return NewBuildError(ErrCodeProvision, "failed to provision revalidation queue", err).
			WithResource(IDRevalidationQueue).WithStep("queue")
	}
	b.composer.queue = queueHandle
	b.composer.queueID = IDRevalidationQueue
	if err := b.addNode(&ResourceNode{
		ID:           IDRevalidationQueue,
		Kind:         KindQueue,
		PhysicalName: queueHandle.Name,
		Queue:        queueSpec,
	}); err != nil {
		return err
	}

	bundle, handler := revalidationBundle, revalidationHandler
	if ref := b.manifest.Props().RevalidationFunction; ref != nil {
		bundle, handler = ref.Bundle, ref.Handler
	}

	env, grants := b.composer.revalidationEnv()
	spec := &FunctionSpec{
		Role:           OriginRole{Kind: RoleRevalidation},
		Handler:        handler,
		Bundle:         bundle,
		MemoryMB:       revalidationMemoryMB,
		TimeoutSeconds: revalidationTimeout,
		Architecture:   defaultArchitecture,
		Runtime:        defaultRuntime,
		Env:            env,
		Grants:         grants,
	}
	applyFunctionOverride(spec, b.overrides.ForRole("revalidation"))

	_, err = b.provisionFunction(ctx, IDRevalidationFn, spec,
		b.dependencies(IDCacheBucket, IDRevalidationQueue, b.composer.tableID))
	return err
}

// buildSeeder provisions the deploy-time seed task when the build is
// eligible: tag cache enabled and an initialization function present. The
// trigger token is unique per build so the task re-runs on every deploy.
func (b *Builder) buildSeeder(ctx context.Context) error {
	if !b.flags.SeederEligible {
		return nil
	}

	ref := b.manifest.Props().InitializationFunction
	env, grants := b.composer.seederEnv(uuid.NewString())
	spec := &FunctionSpec{
		Role:           OriginRole{Kind: RoleSeeder},
		Handler:        ref.Handler,
		Bundle:         ref.Bundle,
		MemoryMB:       seederMemoryMB,
		TimeoutSeconds: seederTimeoutSeconds,
		Architecture:   defaultArchitecture,
		Runtime:        defaultRuntime,
		Env:            env,
		Grants:         grants,
	}
	applyFunctionOverride(spec, b.overrides.ForRole("seeder"))

	_, err := b.provisionFunction(ctx, IDSeederFn, spec, []LogicalID{IDTagCacheTable})
	return err
}

// buildDefaultFunction provisions the catch-all server function. Its
// split-origin map is injected as a deferred value: the split endpoints do
// not exist yet, and the thunk guards against premature evaluation.
func (b *Builder) buildDefaultFunction(ctx context.Context) error {
	origin := b.manifest.Origins[manifest.KeyDefault]

	var splitMap *Deferred
	if len(b.splitKeys) > 0 {
		splitMap = Defer(b.splitOriginMap)
	}

	env, grants := b.composer.serverEnv(splitMap)
	spec := &FunctionSpec{
		Role:           OriginRole{Kind: RoleDefaultCompute},
		Handler:        origin.Handler,
		Bundle:         origin.Bundle,
		Streaming:      origin.Streaming,
		MemoryMB:       serverMemoryMB,
		TimeoutSeconds: serverTimeoutSeconds,
		Architecture:   defaultArchitecture,
		Runtime:        defaultRuntime,
		Env:            env,
		Grants:         grants,
	}
	applyFunctionOverride(spec, b.overrides.ForRole(manifest.KeyDefault))

	handle, err := b.provisionFunction(ctx, IDDefaultFn, spec,
		b.dependencies(IDCacheBucket, IDRevalidationQueue, b.composer.tableID))
	if err != nil {
		return err
	}

	b.targets[manifest.KeyDefault] = TargetID(handle.EndpointURL)
	b.computeFunctions = append(b.computeFunctions, handle.Name)
	return nil
}

// buildSplitFunctions provisions one server function per split origin in
// manifest key order, recording each endpoint so the default function's
// deferred split-origin map becomes resolvable.
func (b *Builder) buildSplitFunctions(ctx context.Context) error {
	for _, key := range b.splitKeys {
		origin := b.manifest.Origins[key]

		env, grants := b.composer.serverEnv(nil)
		spec := &FunctionSpec{
			Role:           SplitRole(key),
			Handler:        origin.Handler,
			Bundle:         origin.Bundle,
			Streaming:      origin.Streaming,
			MemoryMB:       serverMemoryMB,
			TimeoutSeconds: serverTimeoutSeconds,
			Architecture:   defaultArchitecture,
			Runtime:        defaultRuntime,
			Env:            env,
			Grants:         grants,
		}
		applyFunctionOverride(spec, b.overrides.ForRole(key))

		id := SplitFunctionID(key)
		handle, err := b.provisionFunction(ctx, id, spec,
			b.dependencies(IDCacheBucket, IDRevalidationQueue, b.composer.tableID))
		if err != nil {
			return err
		}

		b.splitOrigins[key] = handle.EndpointURL
		b.targets[key] = TargetID(handle.EndpointURL)
		b.computeFunctions = append(b.computeFunctions, handle.Name)
	}
	return nil
}

// splitOriginMap is the thunk behind the default function's deferred
// split-origin-map value. It fails rather than emitting a partial map when
// evaluated before every split endpoint exists.
func (b *Builder) splitOriginMap() (string, error) {
	if len(b.splitOrigins) != len(b.splitKeys) {
		return "", NewBuildError(ErrCodeUnresolved,
			"split-origin map evaluated before all split endpoints exist", nil).
			WithResource(IDDefaultFn)
	}
	data, err := json.Marshal(b.splitOrigins)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (b *Builder) buildImageOptimizer(ctx context.Context) error {
	origin, ok := b.manifest.Origins[manifest.KeyImageOptimizer]
	if !ok || origin.Type != manifest.OriginTypeCompute {
		return nil
	}

	b.composer.assetPrefix = b.manifest.Origins[manifest.KeyAssets].OriginPath
	env, grants := b.composer.imageOptimizerEnv()
	spec := &FunctionSpec{
		Role:           OriginRole{Kind: RoleImageOptimizer},
		Handler:        origin.Handler,
		Bundle:         origin.Bundle,
		Streaming:      origin.Streaming,
		MemoryMB:       imageMemoryMB,
		TimeoutSeconds: imageTimeoutSeconds,
		Architecture:   defaultArchitecture,
		Runtime:        defaultRuntime,
		Env:            env,
		Grants:         grants,
	}
	applyFunctionOverride(spec, b.overrides.ForRole(manifest.KeyImageOptimizer))

	handle, err := b.provisionFunction(ctx, IDImageOptimizerFn, spec, []LogicalID{IDCacheBucket})
	if err != nil {
		return err
	}
	b.targets[manifest.KeyImageOptimizer] = TargetID(handle.EndpointURL)
	return nil
}

func (b *Builder) buildLogPipeline() error {
	if b.overrides.DisableAccessLogs {
		return nil
	}
	return b.addNode(&ResourceNode{
		ID:   IDLogPipeline,
		Kind: KindLogPipeline,
	})
}

// buildDistribution synthesizes the routing rules and provisions the
// distribution. The static-assets origin routes to a bucket target rather
// than a function endpoint.
func (b *Builder) buildDistribution(ctx context.Context) (DistributionHandle, error) {
	if _, ok := b.manifest.Origins[manifest.KeyAssets]; ok {
		b.targets[manifest.KeyAssets] = TargetID("bucket://" + b.composer.bucket.Name)
	}

	synthesizer := NewSynthesizer(b.manifest, b.targets, b.logger)
	rules, err := synthesizer.Synthesize(&b.overrides.Routing)
	if err != nil {
		return DistributionHandle{}, err
	}
	if dropped := synthesizer.Dropped(); dropped > 0 {
		for i := 0; i < dropped; i++ {
			b.metrics.BehaviorDropped()
		}
		b.warn(fmt.Sprintf("%d behavior(s) dropped from routing output", dropped))
	}
	b.metrics.RuleSynthesized(string(RuleSourceDefault))
	for _, rule := range rules.Additional {
		b.metrics.RuleSynthesized(string(rule.Source))
	}

	spec := &DistributionSpec{
		Rules:         rules,
		CustomDomains: b.overrides.Routing.CustomDomains,
	}
	depends := functionNodeIDs(b.arena)
	if b.arena.get(IDLogPipeline) != nil {
		spec.LogPipeline = IDLogPipeline
		depends = append(depends, IDLogPipeline)
	}

	handle, err := b.provisioner.ProvisionDistribution(ctx, IDDistribution, spec)
	if err != nil {
		return DistributionHandle{}, NewBuildError(ErrCodeProvision,
			"failed to provision distribution", err).
			WithResource(IDDistribution).WithStep("distribution")
	}

	if err := b.addNode(&ResourceNode{
		ID:           IDDistribution,
		Kind:         KindDistribution,
		PhysicalName: handle.ID,
		DependsOn:    depends,
		Distribution: spec,
	}); err != nil {
		return DistributionHandle{}, err
	}
	return handle, nil
}

// buildAssetUpload ties the static asset upload to the distribution so
// uploads can invalidate stale cached paths.
func (b *Builder) buildAssetUpload() error {
	origin, ok := b.manifest.Origins[manifest.KeyAssets]
	if !ok || len(origin.Copy) == 0 {
		return nil
	}

	entries := make([]AssetEntry, 0, len(origin.Copy))
	for _, c := range origin.Copy {
		entries = append(entries, AssetEntry{
			From:            c.From,
			To:              c.To,
			Cached:          c.Cached,
			VersionedSubDir: c.VersionedSubDir,
		})
	}

	return b.addNode(&ResourceNode{
		ID:        IDAssetUpload,
		Kind:      KindAssetUpload,
		DependsOn: []LogicalID{IDCacheBucket, IDDistribution},
		AssetUpload: &AssetUploadSpec{
			Entries:      entries,
			Distribution: IDDistribution,
		},
	})
}

func (b *Builder) buildAlarms() error {
	if !b.overrides.EnableAlarms {
		return nil
	}

	targets := []LogicalID{IDRevalidationQueue}
	targets = append(targets, functionNodeIDs(b.arena)...)
	targets = append(targets, IDDistribution)

	for _, target := range targets {
		if err := b.addNode(&ResourceNode{
			ID:        LogicalID("alarm-" + string(target)),
			Kind:      KindAlarm,
			DependsOn: []LogicalID{target},
			Alarm:     &AlarmSpec{Target: target},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) buildDNSRecords() error {
	if b.overrides.DisableDNS {
		return nil
	}

	for _, domain := range b.overrides.Routing.CustomDomains {
		if err := b.addNode(&ResourceNode{
			ID:        LogicalID("dns-" + domain),
			Kind:      KindDNSRecord,
			DependsOn: []LogicalID{IDDistribution},
			DNSRecord: &DNSRecordSpec{
				Domain:       domain,
				Distribution: IDDistribution,
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

// buildWarmer provisions the scheduled warmer last: it targets every
// compute function by physical name, all of which exist by now.
func (b *Builder) buildWarmer(ctx context.Context) error {
	ref := b.manifest.Props().Warmer
	if ref == nil || b.overrides.DisableWarmer {
		return nil
	}

	targets, err := json.Marshal(b.computeFunctions)
	if err != nil {
		return err
	}
	handler := ref.Handler
	if handler == "" {
		handler = warmerHandler
	}

	spec := &FunctionSpec{
		Role:           OriginRole{Kind: RoleWarmer},
		Handler:        handler,
		Bundle:         ref.Bundle,
		MemoryMB:       warmerMemoryMB,
		TimeoutSeconds: warmerTimeoutSeconds,
		Architecture:   defaultArchitecture,
		Runtime:        defaultRuntime,
		Env: EnvMap{
			EnvWarmTargets: Literal(string(targets)),
		},
	}
	applyFunctionOverride(spec, b.overrides.ForRole("warmer"))

	depends := []LogicalID{IDDefaultFn}
	for _, key := range b.splitKeys {
		depends = append(depends, SplitFunctionID(key))
	}
	_, err = b.provisionFunction(ctx, IDWarmerFn, spec, depends)
	return err
}

// provisionFunction provisions one function spec and records its node.
func (b *Builder) provisionFunction(ctx context.Context, id LogicalID, spec *FunctionSpec, depends []LogicalID) (FunctionHandle, error) {
	handle, err := b.provisioner.ProvisionFunction(ctx, id, spec)
	if err != nil {
		return FunctionHandle{}, NewBuildError(ErrCodeProvision,
			fmt.Sprintf("failed to provision function %s", id), err).WithResource(id)
	}

	if err := b.addNode(&ResourceNode{
		ID:           id,
		Kind:         KindFunction,
		PhysicalName: handle.Name,
		DependsOn:    depends,
		Function:     spec,
	}); err != nil {
		return FunctionHandle{}, err
	}
	return handle, nil
}

func (b *Builder) addNode(node *ResourceNode) error {
	if err := b.arena.add(node); err != nil {
		return err
	}
	b.metrics.ResourcePlanned(string(node.Kind))
	b.logger.Debug().
		Str("resource", string(node.ID)).
		Str("kind", string(node.Kind)).
		Str("physical_name", node.PhysicalName).
		Msg("Planned resource")
	return nil
}

// dependencies filters out empty IDs, which stand for skipped resources.
func (b *Builder) dependencies(ids ...LogicalID) []LogicalID {
	out := make([]LogicalID, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

func (b *Builder) warn(message string) {
	b.warnings = append(b.warnings, message)
	b.logger.Warn().Msg(message)
}

// applyFunctionOverride layers a caller override onto a composed spec.
// Composed environment variables win over caller-supplied ones.
func applyFunctionOverride(spec *FunctionSpec, o FunctionOverride) {
	if o.MemoryMB > 0 {
		spec.MemoryMB = o.MemoryMB
	}
	if o.TimeoutSeconds > 0 {
		spec.TimeoutSeconds = o.TimeoutSeconds
	}
	if o.Architecture != "" {
		spec.Architecture = o.Architecture
	}
	if o.Runtime != "" {
		spec.Runtime = o.Runtime
	}
	if o.ExistingHandle != "" {
		spec.ExistingHandle = o.ExistingHandle
	}
	for key, value := range o.Environment {
		if _, composed := spec.Env[key]; composed {
			continue
		}
		if spec.Env == nil {
			spec.Env = EnvMap{}
		}
		spec.Env[key] = Literal(value)
	}
}

// functionNodeIDs returns the logical IDs of every function node planned so
// far, in insertion order.
func functionNodeIDs(a *arena) []LogicalID {
	var out []LogicalID
	for _, node := range a.list() {
		if node.Kind == KindFunction {
			out = append(out, node.ID)
		}
	}
	return out
}
