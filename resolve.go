package cafe

// Resolver maps virtual paths onto the cache directory.
//
// The mapping is plain concatenation. Nothing is cleaned or checked, so a
// virtual path containing ".." can resolve outside the cache root.
type Resolver struct {
	root string
}

// NewResolver returns a Resolver for the given cache root.
func NewResolver(cacheRoot string) Resolver {
	return Resolver{root: cacheRoot}
}

// Root returns the cache root
func (r Resolver) Root() string {
	return r.root
}

// Resolve returns cacheRoot + "/" + virtual. Every call yields its own
// string; results never alias each other.
func (r Resolver) Resolve(virtual string) string {
	return r.root + "/" + virtual
}
