package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"peasurvey/internal/models"
)

const (
	DefaultLookupTimeout = 5 * time.Second
	maxLookupBody        = 64 * 1024
)

var ErrUnavailable = errors.New("position unavailable")

var validate = validator.New()

// Locator produces the position used to bias map retrieval.
type Locator interface {
	Locate(ctx context.Context) (*models.GeoBias, error)
}

// StaticLocator always answers with a fixed position.
type StaticLocator struct {
	Bias *models.GeoBias
}

func (s StaticLocator) Locate(ctx context.Context) (*models.GeoBias, error) {
	if s.Bias == nil {
		return nil, ErrUnavailable
	}
	b := *s.Bias
	return &b, nil
}

// IPLocator asks an ip-api style endpoint for the approximate position of the
// host's public address.
type IPLocator struct {
	URL        string
	HTTPClient *http.Client
}

type ipLookupResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func (l *IPLocator) Locate(ctx context.Context) (*models.GeoBias, error) {
	client := l.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultLookupTimeout}
	}
	parsed, err := url.Parse(l.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid lookup url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New("unsupported lookup url scheme")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ip lookup: %s", resp.Status)
	}

	var out ipLookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxLookupBody)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ip lookup: %w", err)
	}
	if out.Status != "" && out.Status != "success" {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, out.Message)
	}
	bias := &models.GeoBias{Latitude: out.Lat, Longitude: out.Lon}
	if err := validate.Struct(bias); err != nil {
		return nil, fmt.Errorf("%w: coordinates out of range: %v", ErrUnavailable, err)
	}
	return bias, nil
}

// Holder keeps the last acquired position. The zero value holds nothing.
type Holder struct {
	bias atomic.Pointer[models.GeoBias]
}

// Current returns a copy of the held position, or nil.
func (h *Holder) Current() *models.GeoBias {
	if h == nil {
		return nil
	}
	b := h.bias.Load()
	if b == nil {
		return nil
	}
	cp := *b
	return &cp
}

func (h *Holder) Set(b *models.GeoBias) {
	if b == nil {
		return
	}
	cp := *b
	h.bias.Store(&cp)
}

// Known reports whether a position has been acquired.
func (h *Holder) Known() bool {
	return h != nil && h.bias.Load() != nil
}

// Acquire asks loc for a position once, in the background. Failure is logged
// and leaves the holder empty. The returned channel closes when the attempt ends.
func Acquire(ctx context.Context, loc Locator, holder *Holder) <-chan struct{} {
	done := make(chan struct{})
	if loc == nil {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		bias, err := loc.Locate(ctx)
		if err != nil {
			log.Printf("geolocation unavailable: %v", err)
			return
		}
		holder.Set(bias)
		log.Printf("geolocation acquired: %.4f,%.4f", bias.Latitude, bias.Longitude)
	}()
	return done
}
