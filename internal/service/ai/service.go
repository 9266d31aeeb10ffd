package ai

import (
	"context"
	"errors"
	"fmt"
	"log"

	"google.golang.org/genai"

	"peasurvey/internal/config"
	"peasurvey/internal/models"
	"peasurvey/internal/service/parser"
)

// RemoteServiceError wraps a transport or service-side failure of the model call.
type RemoteServiceError struct {
	Err error
}

func (e *RemoteServiceError) Error() string {
	return fmt.Sprintf("remote model call failed: %v", e.Err)
}

func (e *RemoteServiceError) Unwrap() error {
	return e.Err
}

var errEmptyResponse = errors.New("empty response")

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// generatorFactory is swapped in tests.
var generatorFactory = func(ctx context.Context, apiKey string) (contentGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return client.Models, nil
}

// Service asks the Gemini model, grounded on Google Maps, which PEA office
// serves a described place. One Service is built per process and shared.
type Service struct {
	generator   contentGenerator
	model       string
	temperature float32
}

// NewService builds the client from cfg. It fails with a *config.ConfigurationError
// when no API key is configured.
func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	if err := cfg.RequireCredential(); err != nil {
		return nil, err
	}
	gen, err := generatorFactory(ctx, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	return newService(gen, cfg.Model.Name, cfg.Model.Temperature), nil
}

func newService(gen contentGenerator, model string, temperature float32) *Service {
	if model == "" {
		model = config.DefaultModel
	}
	return &Service{generator: gen, model: model, temperature: temperature}
}

// Analyze sends query once, optionally biased toward bias, and parses the reply.
// Failures of the remote call come back as *RemoteServiceError; a malformed
// structured block is only logged.
func (s *Service) Analyze(ctx context.Context, query string, bias *models.GeoBias) (*parser.Reply, error) {
	resp, err := s.generator.GenerateContent(ctx, s.model, genai.Text(query), s.requestConfig(bias))
	if err != nil {
		return nil, &RemoteServiceError{Err: err}
	}
	if resp == nil {
		return nil, &RemoteServiceError{Err: errEmptyResponse}
	}
	reply := parser.Parse(resp.Text(), groundingMetadata(resp))
	if reply.DecodeErr != nil {
		log.Printf("location block ignored: %v", reply.DecodeErr)
	}
	return &reply, nil
}

func (s *Service) requestConfig(bias *models.GeoBias) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		Tools:             []*genai.Tool{{GoogleMaps: &genai.GoogleMaps{}}},
		Temperature:       genai.Ptr(s.temperature),
	}
	if bias != nil {
		cfg.ToolConfig = &genai.ToolConfig{
			RetrievalConfig: &genai.RetrievalConfig{
				LatLng: &genai.LatLng{
					Latitude:  genai.Ptr(bias.Latitude),
					Longitude: genai.Ptr(bias.Longitude),
				},
			},
		}
	}
	return cfg
}

func groundingMetadata(resp *genai.GenerateContentResponse) *genai.GroundingMetadata {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	return resp.Candidates[0].GroundingMetadata
}
