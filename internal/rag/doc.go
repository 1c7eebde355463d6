// Package rag implements the question-answering core: retrieval over the
// vector index, confidence gating, and grounded answer synthesis.
//
// The pipeline is deliberately strict about what counts as an error. A
// question the corpus cannot answer is not a failure; it produces the
// fallback answer with IsFallback set and no sources. Errors are reserved
// for broken infrastructure: an unreachable embedding provider, index
// failures, generation failures.
package rag
