// Package taskgraph implements a small task graph executor.
// Tasks are registered by name together with their prerequisites and an optional step. The executor
// resolves the graph for a requested task, rejects unknown names and cycles before anything runs and then
// executes the steps in dependency order, running unrelated branches concurrently.
package taskgraph
