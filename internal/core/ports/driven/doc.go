// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - EmbeddingService: Maps text to vectors (OpenAI, Gemini, Ollama, hash)
//   - VectorIndex: Vector storage and cosine similarity search (memory, SQLite, Qdrant)
//   - LLMService: Prompt completion (OpenAI, Anthropic, Gemini, Ollama)
//   - DocumentStore: Document record persistence for idempotent re-ingestion
//   - PostProcessorPipeline: Splits documents into chunks
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application falls back to built-in behaviour:
//
//   - PromptStore: User-editable prompt templates. Without it, built-in prompts are used.
//   - AIConfigValidator: Provider connectivity checks.
//   - Normaliser: File format conversion. Unregistered extensions are read as plain text.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
