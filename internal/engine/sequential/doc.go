// Package sequential executes a task list strictly in dependency order,
// one task at a time. It validates dependency references, produces a
// stable topological ordering, and drives a caller-supplied execution
// function over it.
package sequential
