// Package domain defines the core business entities for Mira.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A knowledge-base document (country profile, regulation, policy note)
//   - Chunk: A bounded text segment derived from a Document
//   - IndexEntry: A chunk vector plus metadata stored in the vector index
//   - RetrievedPassage: A scored chunk returned for a question
//   - Answer: A generated, cited response
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
