/*
Package domain contains the core models of the relay orchestration engine.

It defines the shared conversation state carried through the graph, the deltas
nodes use to propose changes to it, the error taxonomy used by the engine to
decide between retrying, degrading and aborting a turn, and the lifecycle hooks
used for observability. This package performs no I/O.

# Key Entities

  - ConversationState: the per-thread record persisted between turns.
  - Delta: the set of field writes a node proposes; applied by the engine only.
  - Field: a bitmask naming state fields, used as each node's write contract.
  - Route: the processing path chosen by the router for the current turn.
  - Document, Chunk, PartialSummary: retrieval and map-reduce payloads.
*/
package domain
