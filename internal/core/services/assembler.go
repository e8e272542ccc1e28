package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
	"github.com/custodia-labs/mira/internal/logger"
	"github.com/custodia-labs/mira/internal/tokenizer"
)

// Ensure ContextAssembler implements the interface.
var _ driven.PromptStoreAware = (*ContextAssembler)(nil)

// ContextAssembler builds a prompt from retrieved passages within a token budget.
type ContextAssembler struct {
	prompts driven.PromptStore
}

// NewContextAssembler creates an assembler using the built-in prompts.
func NewContextAssembler() *ContextAssembler {
	return &ContextAssembler{}
}

// SetPromptStore sets the prompt store for loading customisable prompts.
func (a *ContextAssembler) SetPromptStore(store driven.PromptStore) {
	a.prompts = store
}

// Assemble renders passages in descending score order, adding them greedily
// until the next one would exceed maxContextTokens. The top passage is always
// included, cut at a token boundary if it alone exceeds the budget.
func (a *ContextAssembler) Assemble(
	passages []domain.RetrievedPassage, question string, maxContextTokens int,
) (*domain.AssembledPrompt, error) {
	if maxContextTokens < 1 {
		return nil, fmt.Errorf("%w: max context tokens must be >= 1, got %d",
			domain.ErrInvalidInput, maxContextTokens)
	}
	question = NormalizeText(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", domain.ErrInvalidInput)
	}

	ordered := make([]domain.RetrievedPassage, len(passages))
	copy(ordered, passages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	prompt := &domain.AssembledPrompt{System: a.systemPrompt()}

	var blocks []string
	seen := make(map[string]bool)
	used := 0
	for i := range ordered {
		block := renderPassage(&ordered[i])
		tokens := tokenizer.Count(block)

		if used+tokens > maxContextTokens {
			if i > 0 {
				break
			}
			block = tokenizer.Truncate(block, maxContextTokens)
			tokens = tokenizer.Count(block)
			prompt.Truncated = true
		}

		blocks = append(blocks, block)
		used += tokens
		prompt.Included++
		if id := ordered[i].DocumentID; !seen[id] {
			seen[id] = true
			prompt.CitedDocumentIDs = append(prompt.CitedDocumentIDs, id)
		}
	}

	if len(blocks) == 0 {
		prompt.Context = tokenizer.Truncate(domain.NoContextMarker, maxContextTokens)
	} else {
		prompt.Context = strings.Join(blocks, "\n")
	}
	prompt.ContextTokens = tokenizer.Count(prompt.Context)
	prompt.User = fmt.Sprintf(a.userTemplate(), prompt.Context, question)

	logger.Debug("assembler: %d/%d passages, %d/%d context tokens, truncated=%t",
		prompt.Included, len(passages), prompt.ContextTokens, maxContextTokens, prompt.Truncated)
	return prompt, nil
}

// renderPassage formats one passage as a context block.
func renderPassage(p *domain.RetrievedPassage) string {
	return fmt.Sprintf("[Source: %s]\n%s\n", p.Source(), strings.TrimSpace(p.Text))
}

func (a *ContextAssembler) systemPrompt() string {
	if a.prompts != nil {
		if p, err := a.prompts.Load(driven.PromptAnswerSystem); err == nil && strings.TrimSpace(p) != "" {
			return p
		}
	}
	return driven.DefaultAnswerSystemPrompt
}

func (a *ContextAssembler) userTemplate() string {
	if a.prompts != nil {
		if p, err := a.prompts.Load(driven.PromptAnswerUser); err == nil && strings.Count(p, "%s") == 2 &&
			strings.Count(p, "%") == 2 {
			return p
		}
	}
	return driven.DefaultAnswerUserPrompt
}
