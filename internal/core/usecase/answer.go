package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
	"github.com/kirillkom/readmate-rag/internal/core/ports"
)

const (
	DefaultSummarySentences = 7
	summaryPartRunes        = 1500
)

// AnswerUseCase layers generation on top of retrieval: grounded question
// answering and map-reduce summarization of a whole document.
type AnswerUseCase struct {
	retriever ports.HybridRetriever
	store     ports.BundleStore
	generator ports.AnswerGenerator
	logger    *slog.Logger
}

func NewAnswerUseCase(
	retriever ports.HybridRetriever,
	store ports.BundleStore,
	generator ports.AnswerGenerator,
	logger *slog.Logger,
) *AnswerUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerUseCase{
		retriever: retriever,
		store:     store,
		generator: generator,
		logger:    logger,
	}
}

var _ ports.DocumentQueryService = (*AnswerUseCase)(nil)

func (uc *AnswerUseCase) Ask(ctx context.Context, req domain.AskRequest) (*domain.Answer, error) {
	result, err := uc.retriever.Retrieve(ctx, req.Retrieval())
	if err != nil {
		return nil, err
	}

	text, err := uc.generator.GenerateAnswer(ctx, req.Question, result.Texts)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &domain.Answer{
		Text:    text,
		Sources: result,
	}, nil
}

func (uc *AnswerUseCase) Summarize(ctx context.Context, docID string, sentences int) (string, error) {
	if err := domain.ValidateSummarize(docID, sentences); err != nil {
		return "", err
	}
	if sentences == 0 {
		sentences = DefaultSummarySentences
	}

	bundle, err := uc.store.Load(ctx, docID)
	if err != nil {
		return "", err
	}

	parts := splitRunes(strings.Join(bundle.Chunks, "\n\n"), summaryPartRunes)
	partials := make([]string, 0, len(parts))
	for i, part := range parts {
		summary, err := uc.generator.SummarizePart(ctx, part)
		if err != nil {
			return "", fmt.Errorf("summarize part %d/%d: %w", i+1, len(parts), err)
		}
		partials = append(partials, summary)
	}

	final, err := uc.generator.CombineSummaries(ctx, partials, sentences)
	if err != nil {
		return "", fmt.Errorf("combine summaries: %w", err)
	}

	uc.logger.Info("summary_completed", "doc_id", docID, "parts", len(parts), "sentences", sentences)
	return final, nil
}

// splitRunes cuts text into consecutive pieces of at most size runes.
func splitRunes(text string, size int) []string {
	runes := []rune(text)
	parts := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
