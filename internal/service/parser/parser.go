package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"google.golang.org/genai"

	"peasurvey/internal/models"
)

const (
	fenceOpen  = "```json"
	fenceClose = "```"
)

// Reply is a model answer split into what is shown, the decoded card and map references.
type Reply struct {
	Text     string
	Result   *models.LocationResult
	MapLinks []string
	// DecodeErr is set when a fenced block was present but unusable. It is
	// informational only; the reply is still displayed.
	DecodeErr error
}

// DecodeError reports a fenced block whose body is not a valid LocationResult.
type DecodeError struct {
	Block string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode location block: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var validate = validator.New()

// Parse splits raw into display text and the optional structured result, and
// collects map links from the grounding metadata returned with it.
func Parse(raw string, meta *genai.GroundingMetadata) Reply {
	reply := Reply{
		Text:     raw,
		MapLinks: MapLinks(meta),
	}
	start, end, body, ok := findBlock(raw)
	if !ok {
		return reply
	}
	reply.Text = strings.TrimSpace(raw[:start] + raw[end:])
	result, err := decodeResult(body)
	if err != nil {
		reply.DecodeErr = &DecodeError{Block: body, Err: err}
		return reply
	}
	reply.Result = result
	return reply
}

// findBlock locates the first ```json fence and its closing fence. It returns
// the byte span of the whole block and the body between the fences.
func findBlock(raw string) (start, end int, body string, ok bool) {
	start = strings.Index(raw, fenceOpen)
	if start < 0 {
		return 0, 0, "", false
	}
	bodyStart := start + len(fenceOpen)
	rel := strings.Index(raw[bodyStart:], fenceClose)
	if rel < 0 {
		return 0, 0, "", false
	}
	bodyEnd := bodyStart + rel
	return start, bodyEnd + len(fenceClose), raw[bodyStart:bodyEnd], true
}

func decodeResult(body string) (*models.LocationResult, error) {
	body = strings.TrimPrefix(body, "\r")
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("empty block")
	}
	var result models.LocationResult
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return nil, err
	}
	if err := validate.Struct(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MapLinks returns the maps URIs of the grounding chunks, in order and without
// deduplication. Chunks without a maps reference are skipped.
func MapLinks(meta *genai.GroundingMetadata) []string {
	if meta == nil {
		return nil
	}
	var links []string
	for _, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Maps == nil || chunk.Maps.URI == "" {
			continue
		}
		links = append(links, chunk.Maps.URI)
	}
	return links
}
