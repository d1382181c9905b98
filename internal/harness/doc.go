// Package harness runs scenario tests: a network definition executed to
// completion by the local driver, optionally interrupted and resumed from
// its checkpoint, then checked against assertions and a golden snapshot.
//
// # Scenario Format
//
// Scenarios are defined in YAML files:
//
//	name: powers
//	description: "What this scenario validates"
//	schema: schema          # optional CUE package, relative to the file
//	network: powers.yaml    # YAML or HCL network definition
//	interrupt_after_rounds: 2
//	assertions:
//	  - type: output
//	    endpoint: sq:out.c
//	    equals: "32"
//	  - type: dirty_count
//	    count: 0
//
// # Assertion Types
//
//   - output: the value at an endpoint renders as the expected literal
//     (scalars) or canonical JSON (compound values)
//   - unset: nothing is stored at an endpoint
//   - dirty_count: number of dirty instances after the run
//   - instance_count: number of instances after the run
//   - children: number of instances created by an instance
//   - failed: the instance's last invocation failed
//   - invocations: total number of invocations across all runs
//
// # Deterministic Testing
//
// Scenarios run with one worker and sequential invocation ids, so the
// final snapshot is identical across runs and can be compared against a
// golden file.
package harness
