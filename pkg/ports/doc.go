/*
Package ports defines the driven ports (interfaces) of the relay engine.

These interfaces decouple the orchestration core from external implementations,
allowing the engine to work with various checkpoint stores, model providers,
document indexes and search APIs.

# Key Interfaces

  - CheckpointStore: persists and restores ConversationState by checkpoint ID.
  - DistributedLocker: serializes turns of one thread across replicas.
  - Completer: produces text from a prompt and conversation context.
  - DocumentIndex: similarity search over the internal knowledge base.
  - WebSearcher: external search used as a one-shot fallback.
  - Embedder: turns text into vectors for index implementations.
*/
package ports
