package rewrite

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used when none is configured
const DefaultModel = "gemini-2.0-flash"

// SystemPrompt instructs the model to rewrite a community report as news copy
const SystemPrompt = `Você é um especialista em jornalismo e comunicação. Sua tarefa é reescrever textos de reportagens de forma mais profissional, objetiva e atrativa para o público.

Regras importantes:
- Mantenha os fatos originais intactos
- Melhore a linguagem e estrutura do texto
- Torne o texto mais envolvente e profissional
- Mantenha o tom jornalístico adequado
- Não adicione informações que não estejam no texto original
- Foque em clareza, concisão e impacto

O texto original é sobre uma reportagem. Reescreva-o de forma jornalística profissional.`

// ErrEmptyResponse indicates the model returned no text
var ErrEmptyResponse = errors.New("model returned an empty response")

// Rewriter turns submitted text into a polished version
type Rewriter interface {
	// Rewrite returns the rewritten text. details carries labelled context
	// such as the neighbourhood of a report.
	Rewrite(ctx context.Context, text string, details map[string]string) (string, error)
}

// generator is the part of genai.Models used here
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAIRewriter rewrites text with Google's Gemini API
type GenAIRewriter struct {
	models          generator
	model           string
	temperature     float32
	maxOutputTokens int32
}

// GenAIOption configures a GenAIRewriter
type GenAIOption func(*GenAIRewriter)

// WithModel overrides the Gemini model
func WithModel(model string) GenAIOption {
	return func(r *GenAIRewriter) {
		if model != "" {
			r.model = model
		}
	}
}

// WithTemperature overrides the sampling temperature
func WithTemperature(temperature float32) GenAIOption {
	return func(r *GenAIRewriter) {
		r.temperature = temperature
	}
}

// WithMaxOutputTokens caps the length of the rewritten text
func WithMaxOutputTokens(tokens int32) GenAIOption {
	return func(r *GenAIRewriter) {
		if tokens > 0 {
			r.maxOutputTokens = tokens
		}
	}
}

// NewGenAIRewriter creates a rewriter backed by the Gemini API
func NewGenAIRewriter(ctx context.Context, apiKey string, opts ...GenAIOption) (*GenAIRewriter, error) {
	if apiKey == "" {
		return nil, errors.New("GenAI API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return newGenAIRewriter(client.Models, opts...), nil
}

func newGenAIRewriter(models generator, opts ...GenAIOption) *GenAIRewriter {
	r := &GenAIRewriter{
		models:          models,
		model:           DefaultModel,
		temperature:     0.7,
		maxOutputTokens: 1000,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rewrite implements Rewriter
func (r *GenAIRewriter) Rewrite(ctx context.Context, text string, details map[string]string) (string, error) {
	resp, err := r.models.GenerateContent(ctx, r.model, genai.Text(buildPrompt(text, details)), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(r.temperature),
		MaxOutputTokens:   r.maxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}

	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

func buildPrompt(text string, details map[string]string) string {
	var b strings.Builder

	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := strings.TrimSpace(details[k]); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}

	b.WriteString("Texto original da reportagem:\n")
	b.WriteString(text)
	b.WriteString("\n\nPor favor, reescreva este texto de forma mais profissional e jornalística, mantendo todos os fatos originais.")
	return b.String()
}
