package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	raw string
	err error
}

func (f fakeClient) chatJSON(ctx context.Context, prompt string, temperature float64) (string, error) {
	return f.raw, f.err
}

func validClassificationJSON() string {
	b, _ := json.Marshal(Classification{
		Category:  "network",
		RootCause: "connection refused to object storage endpoint",
		Details:   []string{"3 retries observed"},
	})
	return string(b)
}

func TestClassifyParsesValidJSON(t *testing.T) {
	a := &Adapter{provider: ProviderOpenAI, client: fakeClient{raw: validClassificationJSON()}}
	c, err := a.Classify(context.Background(), "job XYZ failed")
	require.NoError(t, err)
	assert.Equal(t, "network", string(c.Category))
}

func TestClassifyStripsMarkdownFence(t *testing.T) {
	fenced := "```json\n" + validClassificationJSON() + "\n```"
	a := &Adapter{provider: ProviderOpenAI, client: fakeClient{raw: fenced}}
	c, err := a.Classify(context.Background(), "job XYZ failed")
	require.NoError(t, err)
	assert.Equal(t, "network", string(c.Category))
}

func TestClassifyRejectsCategoryOutsideClosedSet(t *testing.T) {
	bogus := `{"category":"made_up_category","root_cause":"x","details":[],"related_issues":[],"recommendations":[]}`
	a := &Adapter{provider: ProviderOpenAI, client: fakeClient{raw: bogus}}
	_, err := a.Classify(context.Background(), "job XYZ failed")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResponseInvalid)
}

func TestClassifyRejectsUnparseableJSON(t *testing.T) {
	a := &Adapter{provider: ProviderOpenAI, client: fakeClient{raw: "not json at all"}}
	_, err := a.Classify(context.Background(), "job XYZ failed")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResponseInvalid)
}

func TestClassifyWrapsTransportFailure(t *testing.T) {
	a := &Adapter{provider: ProviderOpenAI, client: fakeClient{err: assertErr{}}}
	_, err := a.Classify(context.Background(), "job XYZ failed")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResponseInvalid)
}

type assertErr struct{}

func (assertErr) Error() string { return "simulated transport failure" }

func TestStripMarkdownFenceNoOpOnPlainJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripMarkdownFence(`{"a":1}`))
}

func TestStripMarkdownFenceHandlesBareFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripMarkdownFence("```\n{\"a\":1}\n```"))
}

func TestNewAdapterFromEnvPrefersDeepSeekOverOpenAI(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "dummy-deepseek-key")
	t.Setenv("OPENAI_API_KEY", "dummy-openai-key")

	a, err := NewAdapterFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ProviderDeepSeek, a.Provider())
}

func TestNewAdapterFromEnvFallsBackToOpenAI(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "dummy-openai-key")

	a, err := NewAdapterFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, a.Provider())
}

func TestNewAdapterFromEnvReturnsErrUnavailableWithNoCredential(t *testing.T) {
	_, err := NewAdapterFromEnv()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenAICompatClientChatJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.LessOrEqual(t, req.Temperature, maxTemperature)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		resp := chatResponse{Choices: []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Role: "assistant", Content: validClassificationJSON()}}}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := &openAICompatClient{apiKey: "test", baseURL: srv.URL, model: "test-model", httpClient: srv.Client()}
	out, err := c.chatJSON(context.Background(), "classify this", 0.1)
	require.NoError(t, err)
	assert.Contains(t, out, "network")
}

func TestOpenAICompatClientChatJSONPropagatesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := &openAICompatClient{apiKey: "test", baseURL: srv.URL, model: "test-model", httpClient: srv.Client()}
	_, err := c.chatJSON(context.Background(), "classify this", 0.1)
	require.Error(t, err)
}
