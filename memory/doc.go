// Package memory provides the pipeline's two kinds of memory.
//
// Buffer is the short-term conversational log: an append-only sequence of
// role-tagged entries. The planner and executor read its most recent entries
// as prompt context, and the executor appends every step result to it.
//
// Recall is the long-term side: completed tasks are embedded and stored so
// later goals can retrieve related prior work before planning.
//
// Architecture:
//   - Store: Vector storage backend (similarity store or chromem-go)
//   - Embedder: Text-to-vector conversion (feature hashing, optionally cached, or ONNX)
//   - Manager: Orchestrates retrieval and recording
//
// Integration:
//   - RETRIEVE phase: related prior tasks are formatted into the plan prompt
//   - RECORD phase: a task is stored once it reaches done
package memory
