// Package rag orchestrates the Retrieval-Augmented Generation pipeline.
// It accepts a user question, embeds it, retrieves the most similar stored
// chunks, builds a grounded prompt, and calls the generative model for the
// final answer.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/CoursePilotAI/coursepilot-mvp/engine/domain"
	"github.com/CoursePilotAI/coursepilot-mvp/engine/semantic"
	"github.com/CoursePilotAI/coursepilot-mvp/pkg/gemini"
)

// Embedder maps a query to its embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher abstracts vector similarity search over the index.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, topK int) ([]semantic.SearchResult, error)
}

// Generator is the text-in/text-out completion service.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Options configures the RAG pipeline behaviour.
type Options struct {
	TopK          int
	SearchTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:          4,
		SearchTimeout: 5 * time.Second,
	}
}

// Chat-facing fallback strings. The chat boundary always receives a string,
// never a raw fault.
const (
	NotInitializedAnswer = "Error: QA chain is not initialized."
	NoAnswerFallback     = "Sorry, I received a response but couldn't extract the answer."
)

const promptInstructions = `Use the following context from the course materials to answer the user's question.
If the context does not provide a clear answer, state that you don't know and do not attempt to make up an answer.
If additional relevant information from the context can help, include it to provide a more complete response.
Ensure your answer is concise, clear, and informative.

Formatting instructions:
- When presenting mathematical formulas or equations, enclose them in LaTeX syntax.
- For inline formulas use single dollar signs: $formula$.
- For display formulas use double dollar signs: $$formula$$.
- Preserve the original sentence structure and content.`

// Service is the RAG orchestration service.
type Service struct {
	embed  Embedder
	gen    Generator
	search Searcher
	opts   Options
	logger *slog.Logger
}

// New creates a RAG Service. Any nil dependency leaves the service in an
// uninitialized state: it still accepts questions but answers each with
// NotInitializedAnswer. A startup failure is terminal for the process
// instance; there is no runtime re-initialization.
func New(embed Embedder, gen Generator, search Searcher, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = DefaultOptions().SearchTimeout
	}
	return &Service{
		embed:  embed,
		gen:    gen,
		search: search,
		opts:   opts,
		logger: logger,
	}
}

// Ready reports whether all collaborators were wired at startup.
func (s *Service) Ready() bool {
	return s.embed != nil && s.gen != nil && s.search != nil
}

// Answer represents the structured response from the RAG pipeline.
type Answer struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// Source represents a retrieved chunk backing the answer.
type Source struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float32 `json:"score"`
}

// Retrieve returns the top-k most similar stored chunks for the query.
// k <= 0 uses the configured default.
func (s *Service) Retrieve(ctx context.Context, query string, k int) ([]semantic.SearchResult, error) {
	if k <= 0 {
		k = s.opts.TopK
	}
	if err := domain.ValidateTopK(k); err != nil {
		return nil, err
	}

	embedding, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
	defer cancel()

	results, err := s.search.Search(searchCtx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}
	return results, nil
}

// Query runs the full RAG pipeline and returns the structured answer.
func (s *Service) Query(ctx context.Context, question string) (*Answer, error) {
	if err := domain.ValidateQuestion(domain.Question{Text: question}); err != nil {
		return nil, err
	}

	results, err := s.Retrieve(ctx, question, s.opts.TopK)
	if err != nil {
		return nil, err
	}
	s.logger.Info("rag: retrieved context", "results", len(results), "question_len", len(question))

	reply, err := s.gen.Generate(ctx, buildPrompt(results, question))
	if err != nil {
		return nil, fmt.Errorf("rag: generate: %w", err)
	}

	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{
			ID:      r.ID,
			Content: r.Content,
			Source:  r.Source,
			Score:   r.Score,
		}
	}
	return &Answer{Text: reply, Sources: sources}, nil
}

// Respond is the chat-facing entry point. It always returns a string: faults
// are logged server-side with full detail and converted to a short message
// that names only the error category.
func (s *Service) Respond(ctx context.Context, question string) string {
	if !s.Ready() {
		s.logger.Error("rag: respond called before initialization")
		return NotInitializedAnswer
	}

	answer, err := s.Query(ctx, question)
	if err != nil {
		if errors.Is(err, gemini.ErrNoAnswer) {
			s.logger.Error("rag: model response missing answer text", "error", err)
			return NoAnswerFallback
		}
		s.logger.Error("rag: query failed", "error", err, "question_len", len(question))
		return fmt.Sprintf("Sorry, an error occurred (%s). Please check server logs.", errorCategory(err))
	}
	return answer.Text
}

// buildPrompt composes the grounding instruction, retrieved context, and the
// user's question into one prompt.
func buildPrompt(results []semantic.SearchResult, question string) string {
	var b strings.Builder
	b.WriteString(promptInstructions)
	b.WriteString("\n\nContext:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] (source: %s, score: %.3f)\n%s\n\n", i+1, r.Source, r.Score, r.Content)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// errorCategory maps an internal error to a short user-safe label. Internal
// detail and stack context never reach the chat channel.
func errorCategory(err error) string {
	var verr *domain.ValidationError
	var nerr net.Error
	switch {
	case errors.Is(err, gemini.ErrMissingKey):
		return "Configuration"
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	case errors.As(err, &verr):
		return "Validation"
	case errors.As(err, &nerr):
		return "Network"
	default:
		return "Internal"
	}
}
