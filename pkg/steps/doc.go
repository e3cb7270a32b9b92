// Package steps contains the actions tasks can run besides plain shell snippets: external commands,
// bundler invocations, per-file test runs, cleanup, release archives and long-lived servers.
//
// Every step implements taskgraph.Step and a Describe method used by dry runs.
package steps
