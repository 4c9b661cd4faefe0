// Package quench is a developer-facing code quality checker built for
// iterative use: a suite of independent checks run repeatedly over a source
// tree, with a persistent file-level cache so that unchanged files cost a
// lookup instead of a re-run.
//
// The core pipeline is Walker -> Runner -> Checks, with the FileCache
// partitioning files into hits and misses and the Reader loading content on
// demand with a size-appropriate strategy.
package quench

// Version is recorded in the cache generation. A cache written by a
// different version is discarded on load.
const Version = "0.3.0"
