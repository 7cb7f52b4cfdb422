// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"golang.org/x/time/rate"

	"github.com/hashicorp/dispatch/dispatch/structs"
)

// Estimate is one origin-to-destination travel figure.
type Estimate struct {
	DistanceMeters float64
	ETA            time.Duration
	Source         structs.ETASource
}

// Provider is the external routing matrix API. Implementations must return
// exactly one estimate per destination, in order.
type Provider interface {
	Matrix(ctx context.Context, origin structs.Location, destinations []structs.Location, at time.Time) ([]Estimate, error)
}

// HTTPProvider calls a routing service's matrix endpoint over HTTP. Requests
// are rate limited client-side so a recommendation burst cannot exhaust the
// provider quota.
type HTTPProvider struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPProvider creates a provider against the given matrix URL allowing
// rps requests per second with the given burst.
func NewHTTPProvider(url string, rps float64, burst int) *HTTPProvider {
	return &HTTPProvider{
		url:     url,
		client:  cleanhttp.DefaultPooledClient(),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

type matrixPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type matrixRequest struct {
	Origin       matrixPoint   `json:"origin"`
	Destinations []matrixPoint `json:"destinations"`
	Depart       time.Time     `json:"depart"`
}

type matrixRow struct {
	DistanceMeters  float64 `json:"distance_m"`
	DurationSeconds float64 `json:"duration_s"`
}

type matrixResponse struct {
	Rows []matrixRow `json:"rows"`
}

func (p *HTTPProvider) Matrix(ctx context.Context, origin structs.Location, destinations []structs.Location, at time.Time) ([]Estimate, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqBody := matrixRequest{
		Origin: matrixPoint{Lat: origin.Lat, Lon: origin.Lon},
		Depart: at,
	}
	for _, d := range destinations {
		reqBody.Destinations = append(reqBody.Destinations, matrixPoint{Lat: d.Lat, Lon: d.Lon})
	}

	buf, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("routing provider returned status %d", resp.StatusCode)
	}

	var out matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding matrix response: %w", err)
	}
	if len(out.Rows) != len(destinations) {
		return nil, fmt.Errorf("routing provider returned %d rows for %d destinations", len(out.Rows), len(destinations))
	}

	estimates := make([]Estimate, len(out.Rows))
	for i, row := range out.Rows {
		estimates[i] = Estimate{
			DistanceMeters: row.DistanceMeters,
			ETA:            time.Duration(row.DurationSeconds * float64(time.Second)),
			Source:         structs.ETASourceRouted,
		}
	}
	return estimates, nil
}
