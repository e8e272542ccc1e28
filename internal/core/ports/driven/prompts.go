package driven

// PromptStore supplies the answer prompts. The assembler falls back to the
// built-in prompts whenever Load fails.
type PromptStore interface {
	// Load returns the named prompt. A template that cannot be used wraps
	// domain.ErrInvalidInput.
	Load(name string) (string, error)

	// Reload drops cached prompts.
	Reload()
}

// Prompt names.
const (
	// PromptAnswerSystem is the system prompt for grounded answers.
	// This prompt has no format placeholders.
	PromptAnswerSystem = "answer_system"

	// PromptAnswerUser frames the retrieved context and the question.
	// The template expects two %s placeholders: context, then question.
	PromptAnswerUser = "answer_user"
)

// DefaultAnswerSystemPrompt is used when no prompt store provides one.
const DefaultAnswerSystemPrompt = `You are AskMira, an expert in global education and foreign academic credential evaluation.
Answer the user's question using only the provided context.
If the answer is not in the context, say that you don't know. If the context states that no relevant context was found, reply that no relevant information was found in the knowledge base.
Always cite the sources you used by their [Source: ...] labels.`

// DefaultAnswerUserPrompt frames the context and question. It takes the
// context and the question, in that order.
const DefaultAnswerUserPrompt = "Here is the context to use for answering the question:\n\n%s\n\nQuestion: %s"

// PromptStoreAware is implemented by services whose prompts can be
// replaced after construction.
type PromptStoreAware interface {
	SetPromptStore(store PromptStore)
}
