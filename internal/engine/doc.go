// Package engine executes structured function calls emitted by a language
// model against heterogeneous backends.
//
// A function call is a kind (native, script, template, rest, scrape,
// composite, sqlite) plus a kind-specific configuration and an argument
// object. The engine validates configurations once at catalog load time,
// resolves the executor for the kind through a closed registry, enforces
// the entity-exposure allow-list, and returns either a backend-specific
// result or a typed failure.
//
// # Key Types
//
//   - Executor: strategy implementing "validate once, execute many" for one kind
//   - Registry: closed mapping from kind to Executor, the single extension point
//   - Catalog: the validated set of invocable function definitions
//   - Capabilities: injected backend handles (states, services, history,
//     automations, memory sink) — the engine holds no ambient global state
//   - Engine: the entry point tying catalog, registry and telemetry together
//
// # Authorization
//
// Authorization is entity-exposure only. Every executor that touches named
// entities runs the exposure guard before issuing a side-effecting call:
// an entity must both exist and be a member of the caller-supplied exposed
// set, otherwise the invocation fails with ErrEntityNotFound or
// ErrEntityNotExposed respectively.
//
// # Thread Safety
//
// The engine holds no cross-invocation mutable state. Composite invocations
// thread a variable environment that is a per-invocation copy of the input
// arguments. Catalog reloads swap the entry map under a lock; concurrent
// invocations are safe.
package engine
