package trie

// Config holds the tunables a caller sets when constructing a Trie. There
// is no file or environment parsing here -- configuration is always
// supplied programmatically, through functional options, matching the
// engine's scope as a library component rather than a standalone service.
type Config struct {
	// CacheBudgetBytes records a byte budget for the node cache. The Trie
	// does not read it and does not own a cache: a NodeCache is bounded by
	// the budget passed to NewNodeCache (zero means unbounded).
	CacheBudgetBytes int

	// ParallelBranches enables fanning a root branch commit's dirty
	// children out across goroutines once there are enough of them to be
	// worth the overhead (see parallelBranchThreshold).
	ParallelBranches bool

	// AllowCommits gates Commit; a trie opened read-only returns
	// ErrCommitsDisabled from Commit regardless of dirty state.
	AllowCommits bool

	// IgnoreMissingDelete controls Delete's behavior for an absent key:
	// true (the default) makes it a no-op, false returns
	// ErrMissingForDelete.
	IgnoreMissingDelete bool
}

// Option configures a Trie at construction time.
type Option func(*Config)

func newConfig(opts ...Option) Config {
	cfg := Config{
		CacheBudgetBytes:    64 * 1024 * 1024,
		ParallelBranches:    true,
		AllowCommits:        true,
		IgnoreMissingDelete: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithCacheBudget sets Config.CacheBudgetBytes; it does not resize any
// NodeCache.
func WithCacheBudget(bytes int) Option {
	return func(c *Config) { c.CacheBudgetBytes = bytes }
}

// WithParallelBranches enables or disables parallel root-branch commit.
func WithParallelBranches(enabled bool) Option {
	return func(c *Config) { c.ParallelBranches = enabled }
}

// WithCommitsAllowed controls whether Commit is permitted at all, for
// opening a trie strictly for reads.
func WithCommitsAllowed(allowed bool) Option {
	return func(c *Config) { c.AllowCommits = allowed }
}

// WithIgnoreMissingDelete controls Delete's behavior on an absent key.
func WithIgnoreMissingDelete(ignore bool) Option {
	return func(c *Config) { c.IgnoreMissingDelete = ignore }
}
