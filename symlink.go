package cafe

// Readlink returns the destination of a symlink, as stored by the delegate.
// The cache is not consulted, so a link that only exists in the cache
// cannot be read through here.
func (c *CacheFS) Readlink(name string) (string, error) {
	c.stats.passthrough.Add(1)
	return c.delegate.Readlink(name)
}

// Symlink creates a symbolic link through the delegate
func (c *CacheFS) Symlink(oldname, newname string) error {
	c.stats.passthrough.Add(1)
	return c.delegate.Symlink(oldname, newname)
}

// Lchown changes the ownership of a symlink without following it
func (c *CacheFS) Lchown(name string, uid, gid int) error {
	c.stats.passthrough.Add(1)
	return c.delegate.Lchown(name, uid, gid)
}
