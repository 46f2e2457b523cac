package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/phrazzld/stockroom/internal/capability"
	"github.com/phrazzld/stockroom/internal/config"
	"github.com/phrazzld/stockroom/internal/provider"
	"google.golang.org/genai"
)

// ProviderName is the registry identifier of the Gemini provider.
const ProviderName = "gemini"

const specsPrompt = `You are a parts librarian for an electronics inventory.
Return the published technical specifications for manufacturer part number "{{.SubjectID}}".
{{- if .Manufacturer}} The manufacturer is "{{.Manufacturer}}".{{end}}
Respond with JSON only, shaped as:
{"specifications": {"<name>": "<value with unit>"}, "category": "<category>", "confidence": "high|medium|low"}
If you do not recognise the part, respond with {"specifications": {}}.`

// contentGenerator is the subset of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// SpecsClient generates part specifications.
type SpecsClient struct {
	logger *slog.Logger
	models contentGenerator
	model  string
	prompt *template.Template
}

type promptData struct {
	SubjectID    string
	Manufacturer string
}

type specsResponse struct {
	Specifications map[string]any `json:"specifications"`
	Category       string         `json:"category"`
	Confidence     string         `json:"confidence"`
}

// NewSpecsClient creates a client against the Gemini API. An empty API key
// is a configuration error; callers probe for it before constructing.
func NewSpecsClient(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*SpecsClient, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return newSpecsClient(logger, client.Models, cfg.ModelName), nil
}

func newSpecsClient(logger *slog.Logger, models contentGenerator, model string) *SpecsClient {
	return &SpecsClient{
		logger: logger.With("component", "gemini_specs"),
		models: models,
		model:  model,
		prompt: template.Must(template.New("specs").Parse(specsPrompt)),
	}
}

// Provider exposes the client as a capability table serving fetch-specs.
func (c *SpecsClient) Provider() *provider.Provider {
	return provider.New(ProviderName, provider.Table{
		capability.FetchSpecs: c.fetchSpecs,
	})
}

func (c *SpecsClient) fetchSpecs(
	ctx context.Context,
	subjectID string,
	params map[string]any,
) (provider.Artifact, error) {
	if strings.TrimSpace(subjectID) == "" {
		return provider.Artifact{}, fmt.Errorf("gemini: %w: empty subject", provider.ErrMalformedSubject)
	}

	data := promptData{SubjectID: subjectID}
	if m, ok := params["manufacturer"].(string); ok {
		data.Manufacturer = m
	}

	var buf bytes.Buffer
	if err := c.prompt.Execute(&buf, data); err != nil {
		return provider.Artifact{}, fmt.Errorf("gemini: failed to execute prompt template: %w", err)
	}

	c.logger.DebugContext(ctx, "requesting specifications", "subject_id", subjectID, "model", c.model)

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(buf.String()), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		if ctx.Err() != nil {
			return provider.Artifact{}, fmt.Errorf("gemini: %w", ctx.Err())
		}
		return provider.Artifact{}, fmt.Errorf("gemini: %w: %v", provider.ErrTransient, err)
	}

	text, err := responseText(resp)
	if err != nil {
		return provider.Artifact{}, err
	}

	var parsed specsResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return provider.Artifact{}, fmt.Errorf("gemini: failed to parse JSON response: %w", err)
	}
	if len(parsed.Specifications) == 0 {
		return provider.Artifact{}, fmt.Errorf("gemini: %w: no specifications for %s", provider.ErrNotFound, subjectID)
	}

	return provider.Artifact{Data: map[string]any{
		"specifications": parsed.Specifications,
		"category":       parsed.Category,
		"confidence":     parsed.Confidence,
		"model":          c.model,
	}}, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini: %w: no content generated", provider.ErrNotFound)
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("gemini: %w", ErrContentBlocked)
	}
	if cand.Content == nil {
		return "", fmt.Errorf("gemini: %w: empty content in response", provider.ErrNotFound)
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini: %w: empty content in response", provider.ErrNotFound)
	}
	return sb.String(), nil
}
