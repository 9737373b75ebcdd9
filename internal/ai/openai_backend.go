package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/oauth2/clientcredentials"

	"supportwatch/internal/config"
)

const azureCognitiveScope = "https://cognitiveservices.azure.com/.default"

// ChatBackend talks to any OpenAI-compatible chat/embedding API. The vendor
// API, the OAuth cloud and the local model server differ only in how the
// client is configured.
type ChatBackend struct {
	client      *openai.Client
	backendType BackendType
	chatModel   string
	embedModel  string
	jsonMode    bool
}

// NewOpenAIBackend creates the API-key vendor backend
func NewOpenAIBackend(cfg *config.Config) (*ChatBackend, error) {
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("openai backend requires OPENAI_API_KEY")
	}
	return &ChatBackend{
		client:      openai.NewClient(cfg.OpenAIKey),
		backendType: BackendOpenAI,
		chatModel:   cfg.OpenAIModel,
		embedModel:  cfg.OpenAIEmbeddingModel,
		jsonMode:    true,
	}, nil
}

// NewAzureBackend creates the OAuth cloud backend. Tokens come from the
// Entra ID client-credentials flow and are refreshed by the oauth2 transport.
func NewAzureBackend(cfg *config.Config) (*ChatBackend, error) {
	if !cfg.HasAzureOAuth() {
		return nil, fmt.Errorf("azure backend requires AZURE_OPENAI_ENDPOINT, AZURE_TENANT_ID, AZURE_CLIENT_ID and AZURE_CLIENT_SECRET")
	}

	creds := clientcredentials.Config{
		ClientID:     cfg.AzureClientID,
		ClientSecret: cfg.AzureClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.AzureTenantID),
		Scopes:       []string{azureCognitiveScope},
	}

	azureConfig := openai.DefaultAzureConfig("", cfg.AzureOpenAIEndpoint)
	azureConfig.APIType = openai.APITypeAzureAD
	azureConfig.HTTPClient = creds.Client(context.Background())
	// Deployment names are passed through as-is
	azureConfig.AzureModelMapperFunc = func(model string) string { return model }

	return &ChatBackend{
		client:      openai.NewClientWithConfig(azureConfig),
		backendType: BackendAzure,
		chatModel:   cfg.AzureOpenAIGPTDeployment,
		embedModel:  cfg.AzureOpenAIEmbeddingDeployment,
		jsonMode:    true,
	}, nil
}

// NewLocalBackend creates the local model server backend (Ollama or any
// OpenAI-compatible server). No credentials are sent.
func NewLocalBackend(cfg *config.Config) (*ChatBackend, error) {
	if cfg.LocalAIBaseURL == "" {
		return nil, fmt.Errorf("local backend requires LOCAL_AI_BASE_URL")
	}
	localConfig := openai.DefaultConfig("")
	localConfig.BaseURL = strings.TrimRight(cfg.LocalAIBaseURL, "/")

	return &ChatBackend{
		client:      openai.NewClientWithConfig(localConfig),
		backendType: BackendLocal,
		chatModel:   cfg.LocalAIModel,
		embedModel:  cfg.LocalAIEmbeddingModel,
		// Not every local server honours response_format
		jsonMode: false,
	}, nil
}

// Type returns the backend variant
func (b *ChatBackend) Type() BackendType {
	return b.backendType
}

// EmbeddingFamily combines backend and model, vectors from different families are not comparable
func (b *ChatBackend) EmbeddingFamily() string {
	return fmt.Sprintf("%s:%s", b.backendType, b.embedModel)
}

// Complete runs one chat completion
func (b *ChatBackend) Complete(ctx context.Context, prompt Prompt) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: b.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt.User},
		},
		Temperature: 0.2,
		MaxTokens:   800,
	}
	if prompt.JSON && b.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed generates embeddings for the given texts
func (b *ChatBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := b.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(b.embedModel),
	})
	if err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		if data.Index >= 0 && data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
		} else {
			embeddings[i] = data.Embedding
		}
	}
	return embeddings, nil
}
