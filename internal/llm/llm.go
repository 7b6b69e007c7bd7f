// Package llm implements an optional, provider-abstracted chat-completion
// adapter used only to enrich ingestion
// failure classification. Provider selection is ordered — deepseek, then
// openai, then gemini — and the first provider with a configured
// credential wins. Any transport failure, parse failure, or schema
// violation returns a sentinel error; callers are expected to fall back to
// the deterministic rule-based classifier and record which method
// produced the result, never silently prefer the LLM's answer.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagerrors"
	"github.com/tracymacding/starrocks-diag-engine/internal/logging"
)

// Provider identifies which backend produced a Classification.
type Provider string

const (
	ProviderDeepSeek Provider = "deepseek"
	ProviderOpenAI   Provider = "openai"
	ProviderGemini   Provider = "gemini"
)

// providerOrder is the fixed priority order providers are tried in.
var providerOrder = []Provider{ProviderDeepSeek, ProviderOpenAI, ProviderGemini}

// envVars lists the primary and aliased environment variables each
// provider's credential may be read from; aliases are permitted.
var envVars = map[Provider][]string{
	ProviderDeepSeek: {"DEEPSEEK_API_KEY"},
	ProviderOpenAI:   {"OPENAI_API_KEY", "OPENAI_APIKEY"},
	ProviderGemini:   {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// maxTemperature is the ceiling every provider call is capped at.
const maxTemperature = 0.3

// ErrUnavailable is returned by NewAdapterFromEnv when no provider
// credential is present; the adapter is then simply not constructed and
// its caller runs the rule-based classifier exclusively.
var ErrUnavailable = errors.New("llm: no provider credential configured")

// ErrResponseInvalid wraps any transport failure, parse failure, or
// schema violation in the LLM's response; the adapter returns this
// sentinel and the caller falls back to the rule-based classifier.
var ErrResponseInvalid = errors.New("llm: response did not satisfy the classification contract")

// chatClient is the minimal provider surface the Adapter drives. Each
// provider implements it against its own wire format.
type chatClient interface {
	chatJSON(ctx context.Context, prompt string, temperature float64) (string, error)
}

// Classification is the adapter's output schema: `{category, root_cause,
// details[], related_issues[], recommendations[]}`.
type Classification struct {
	Category        diagerrors.FailureCategory `json:"category"`
	RootCause       string                     `json:"root_cause"`
	Details         []string                   `json:"details"`
	RelatedIssues   []string                   `json:"related_issues"`
	Recommendations []string                   `json:"recommendations"`
}

// Adapter drives exactly one resolved provider - the first one with a
// credential present, in priority order.
type Adapter struct {
	provider Provider
	client   chatClient
}

// NewAdapterFromEnv resolves the first available provider credential
// (deepseek, openai, gemini, in that order) and returns an Adapter bound
// to it. Returns ErrUnavailable if no credential is present.
func NewAdapterFromEnv() (*Adapter, error) {
	for _, p := range providerOrder {
		key := firstNonEmptyEnv(envVars[p])
		if key == "" {
			continue
		}
		client, err := newClient(p, key)
		if err != nil {
			return nil, fmt.Errorf("llm: construct %s client: %w", p, err)
		}
		logging.LLM("adapter resolved provider %s", p)
		return &Adapter{provider: p, client: client}, nil
	}
	return nil, ErrUnavailable
}

func newClient(p Provider, apiKey string) (chatClient, error) {
	switch p {
	case ProviderDeepSeek:
		return newDeepSeekClient(apiKey), nil
	case ProviderOpenAI:
		return newOpenAIClient(apiKey), nil
	case ProviderGemini:
		return newGeminiClient(apiKey)
	default:
		return nil, fmt.Errorf("unknown provider %q", p)
	}
}

func firstNonEmptyEnv(names []string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// Provider reports which backend this adapter is bound to.
func (a *Adapter) Provider() Provider { return a.provider }

// Classify runs prompt (already templated by the caller from the
// load-job's fields) through the bound provider at a capped temperature
// and parses the JSON-object response into a Classification. It returns
// ErrResponseInvalid - wrapping the underlying cause - on any transport
// failure, parse failure, or category outside the closed set; callers
// must treat that as "use the rule-based classifier instead", never
// retry with a relaxed contract.
func (a *Adapter) Classify(ctx context.Context, prompt string) (*Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	raw, err := a.client.chatJSON(ctx, prompt, maxTemperature)
	if err != nil {
		logging.LLMWarn("provider %s request failed: %v", a.provider, err)
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}

	var c Classification
	if err := json.Unmarshal([]byte(stripMarkdownFence(raw)), &c); err != nil {
		logging.LLMWarn("provider %s returned unparseable JSON: %v", a.provider, err)
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if !diagerrors.IsValidCategory(c.Category) {
		logging.LLMWarn("provider %s returned category %q outside the closed set", a.provider, c.Category)
		return nil, fmt.Errorf("%w: category %q is not a recognized failure category", ErrResponseInvalid, c.Category)
	}
	return &c, nil
}

// stripMarkdownFence removes a ```json ... ``` or ``` ... ``` wrapper a
// chat model commonly adds around an otherwise-valid JSON body, since
// none of the three providers' JSON-mode guarantees are airtight enough
// to skip this.
func stripMarkdownFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimPrefix(s, "JSON")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// classificationSystemPrompt is the fixed instruction every provider
// receives alongside the caller's templated prompt; the response must be
// a single JSON object.
const classificationSystemPrompt = `You are a StarRocks ingestion failure classifier. Given a load job's error text and metadata, respond with ONLY a single JSON object (no prose, no markdown fence) with exactly these fields: "category" (one of: timeout, resource, network, file, permission_denied, transaction, configuration, data_quality, cancelled, other), "root_cause" (one sentence), "details" (array of strings), "related_issues" (array of strings), "recommendations" (array of strings).`
