package topology

// Environment variable names injected into function resources.
const (
	// EnvQueueURL and EnvQueueRegion point server functions at the
	// revalidation queue.
	EnvQueueURL    = "REVALIDATION_QUEUE_URL"
	EnvQueueRegion = "REVALIDATION_QUEUE_REGION"

	// EnvCacheBucketName, EnvCacheBucketPrefix, and EnvCacheBucketRegion
	// point functions at the incremental cache.
	EnvCacheBucketName   = "CACHE_BUCKET_NAME"
	EnvCacheBucketPrefix = "CACHE_BUCKET_KEY_PREFIX"
	EnvCacheBucketRegion = "CACHE_BUCKET_REGION"

	// EnvCacheTableName points functions at the tag-cache table.
	EnvCacheTableName = "CACHE_TABLE_NAME"

	// EnvCacheTableRegion is set on the seeder only.
	EnvCacheTableRegion = "CACHE_TABLE_REGION"

	// EnvSplitOriginMap is the default function's JSON map of split
	// endpoint URLs keyed by split key. Its value is deferred until every
	// split endpoint exists.
	EnvSplitOriginMap = "SPLIT_ORIGIN_MAP"

	// EnvBucketName and EnvBucketKeyPrefix point the image optimizer at
	// the asset bucket.
	EnvBucketName      = "BUCKET_NAME"
	EnvBucketKeyPrefix = "BUCKET_KEY_PREFIX"

	// EnvSeedTriggerToken changes every build so the deploy-time seed
	// task re-runs on each deployment.
	EnvSeedTriggerToken = "SEED_TRIGGER_TOKEN"

	// EnvWarmTargets is the warmer's JSON list of compute function names.
	EnvWarmTargets = "WARM_TARGETS"
)

// CacheKeyPrefix is the bucket key prefix under which the incremental cache
// lives, separating cached responses from uploaded assets.
const CacheKeyPrefix = "_cache"

// envComposer computes, per function role, the environment variable set
// and the permission grants as a function of the resolved flags and the
// physical handles created earlier in the build.
type envComposer struct {
	flags Flags

	bucket   BucketHandle
	bucketID LogicalID
	queue    QueueHandle
	queueID  LogicalID

	// table is nil when the tag cache is disabled.
	table   *TableHandle
	tableID LogicalID

	// assetPrefix is the asset origin's originPath, empty when absent.
	assetPrefix string
}

// serverEnv composes the environment and grants shared by the default and
// split compute functions. splitMap is non-nil only for the default
// function.
func (c *envComposer) serverEnv(splitMap *Deferred) (EnvMap, []Grant) {
	env := EnvMap{
		EnvQueueURL:    Literal(c.queue.URL),
		EnvQueueRegion: Literal(c.queue.Region),
	}
	grants := []Grant{
		{Resource: c.queueID, Access: AccessSendMessage},
	}

	if !c.flags.IncrementalCacheDisabled {
		env[EnvCacheBucketName] = Literal(c.bucket.Name)
		env[EnvCacheBucketPrefix] = Literal(CacheKeyPrefix)
		env[EnvCacheBucketRegion] = Literal(c.bucket.Region)
		grants = append(grants, Grant{Resource: c.bucketID, Access: AccessReadWrite})
	}

	if c.table != nil {
		env[EnvCacheTableName] = Literal(c.table.Name)
		grants = append(grants, Grant{Resource: c.tableID, Access: AccessReadWrite})
	}

	if splitMap != nil {
		env[EnvSplitOriginMap] = splitMap
	}

	return env, grants
}

// imageOptimizerEnv composes the image optimizer's environment and grants:
// read-only access to the asset bucket under the asset origin's path prefix.
func (c *envComposer) imageOptimizerEnv() (EnvMap, []Grant) {
	env := EnvMap{
		EnvBucketName:      Literal(c.bucket.Name),
		EnvBucketKeyPrefix: Literal(c.assetPrefix),
	}
	grants := []Grant{
		{Resource: c.bucketID, Access: AccessRead},
	}
	return env, grants
}

// revalidationEnv composes the revalidation consumer's environment and
// grants. The bucket variables are unconditional: the consumer writes
// regenerated content regardless of the incremental-cache flag.
func (c *envComposer) revalidationEnv() (EnvMap, []Grant) {
	env := EnvMap{
		EnvCacheBucketName:   Literal(c.bucket.Name),
		EnvCacheBucketPrefix: Literal(CacheKeyPrefix),
		EnvCacheBucketRegion: Literal(c.bucket.Region),
	}
	grants := []Grant{
		{Resource: c.bucketID, Access: AccessReadWrite},
	}

	if c.table != nil {
		env[EnvCacheTableName] = Literal(c.table.Name)
		grants = append(grants, Grant{Resource: c.tableID, Access: AccessReadWrite})
	}

	return env, grants
}

// seederEnv composes the seeder's environment and grants. The trigger
// token is unique per build so the seed task re-runs on each deployment.
func (c *envComposer) seederEnv(triggerToken string) (EnvMap, []Grant) {
	env := EnvMap{
		EnvCacheTableName:   Literal(c.table.Name),
		EnvCacheTableRegion: Literal(c.table.Region),
		EnvSeedTriggerToken: Literal(triggerToken),
	}
	grants := []Grant{
		{Resource: c.tableID, Access: AccessReadWrite},
	}
	return env, grants
}
