/*
Package cafe provides a caching overlay filesystem for Go: reads are served
from a local cache directory that mirrors the layout of a backing store, and
everything else is handled by a delegate filesystem.

# Overview

A CacheFS sits in front of a Delegate (any absfs-style filesystem rooted at
the backing store) and a read-only Store holding the cache directory. Two
operations are intercepted:

  - Attribute lookup (Stat, Lstat) asks the cache first. A hit is
    authoritative even when the delegate would answer differently.
  - Read-only opens ask the cache first. The returned handle keeps serving
    reads from the cache file for its whole lifetime.

Every other operation, including every write, goes straight to the delegate.
A cache failure is never reported; only the delegate's answer is visible to
callers.

# Path Resolution

The cache path for a virtual path is plain concatenation:

	cacheRoot + "/" + virtualPath

No cleaning, no symlink or ".." resolution. "/cache" and "/a/../b" resolve to
"/cache//a/../b", which the operating system is free to interpret. Do not rely
on the resolver for sandboxing.

# Basic Usage

	package main

	import (
	    "os"

	    "github.com/absfs/cafe"
	)

	func main() {
	    delegate, err := cafe.NewOSDelegate("/data")
	    if err != nil {
	        panic(err)
	    }

	    cfs := cafe.New(delegate, "/cache")

	    // Served from /cache//etc/app.yml when present, /data/etc/app.yml otherwise
	    data, err := cfs.ReadFile("/etc/app.yml")

	    // Writes always reach /data
	    f, err := cfs.OpenFile("/etc/app.yml", os.O_WRONLY|os.O_TRUNC, 0644)
	}

# Warming the Cache

Bootstrap runs an external population command once, before any request is
served:

	result := cafe.Bootstrap{
	    Command:     "rsync -a --files-from=/etc/cafe/hot.txt",
	    BackingRoot: "/data",
	    CacheRoot:   "/cache",
	}.Run(ctx)

The command is invoked as "<command> <backing-root> <cache-root>" through
/bin/sh. Its exit status is recorded but never stops the caller: an
incomplete cache only lowers the hit rate, because every miss falls back to
the delegate.

Populate implements a simple population command in-process; cmd/cafe-populate
exposes it as a binary.

# Staleness

The cache is stale-but-authoritative. Nothing keeps it in sync with the
backing store after bootstrap, and writes never touch it. A file modified in
the backing store after population keeps returning the cached content.

# Mounting

Package github.com/absfs/cafe/fuse exposes a CacheFS through FUSE, and
cmd/cafe wires configuration, bootstrap and mount together.

# Thread Safety

CacheFS holds no mutable state besides atomic counters. It is safe for
concurrent use as long as the delegate is.
*/
package cafe
