package domain

// NoContextMarker is placed in the prompt when retrieval found nothing, so the
// model can say it lacks the information instead of guessing.
const NoContextMarker = "NO RELEVANT CONTEXT FOUND. The knowledge base contains no passages " +
	"related to this question."

// GenerationParams holds the sampling parameters sent to the LLM.
type GenerationParams struct {
	// Temperature controls randomness. Zero is deterministic where supported.
	Temperature float64

	// MaxTokens caps the completion length. Zero means the backend default.
	MaxTokens int
}

// AssembledPrompt is the output of context assembly.
type AssembledPrompt struct {
	// System is the system instruction.
	System string

	// Context is the rendered passage blocks, or NoContextMarker.
	Context string

	// User is the final user message (context plus question).
	User string

	// ContextTokens is the token count of Context.
	ContextTokens int

	// CitedDocumentIDs lists the parent documents of included passages,
	// unique, in inclusion order.
	CitedDocumentIDs []string

	// Included is the number of passages that made it into Context.
	Included int

	// Truncated is true when the top passage had to be cut to fit the budget.
	Truncated bool
}

// NoContext reports whether the prompt was built without any passages.
func (p *AssembledPrompt) NoContext() bool {
	return p.Included == 0
}

// GenerationRequest is one prompt plus parameters sent to the generator.
type GenerationRequest struct {
	// System is the system instruction.
	System string

	// User is the user message including the rendered context.
	User string

	// Params are the sampling parameters.
	Params GenerationParams

	// CitedDocumentIDs become the Answer citations verbatim.
	CitedDocumentIDs []string

	// NoContext marks a request assembled without passages.
	NoContext bool
}

// Usage reports token consumption of a generation call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// Answer is the grounded response returned to the caller.
type Answer struct {
	// Text is the generated answer.
	Text string

	// Citations are the document IDs that were supplied as context.
	Citations []string

	// Usage is the backend token accounting.
	Usage Usage

	// Confidence is the top retrieval score, or zero without context.
	Confidence float64

	// NoContext is true when no passages were retrieved.
	NoContext bool

	// Passages is the number of passages included in the prompt.
	Passages int

	// Sources are the included passages, best first.
	Sources []RetrievedPassage
}
