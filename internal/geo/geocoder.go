package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tourcast/internal/domain"
)

// Place is a resolved location.
type Place struct {
	DisplayName string
	Coordinates domain.Coordinates
}

// Geocoder resolves a free-text place query to coordinates. Implementations
// return domain.ErrNotFound when the query resolves to nothing.
type Geocoder interface {
	Geocode(ctx context.Context, query string, near *domain.Coordinates) (*Place, error)
}

// Nominatim queries the OpenStreetMap Nominatim search API.
type Nominatim struct {
	baseURL string
	client  *http.Client
	radiusM float64
}

// NominatimOptions configures the client. RadiusMeters bounds the viewbox
// built around the anchor coordinate when one is supplied.
type NominatimOptions struct {
	BaseURL      string
	HTTPClient   *http.Client
	RadiusMeters float64
}

func NewNominatim(opts NominatimOptions) *Nominatim {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	radius := opts.RadiusMeters
	if radius <= 0 {
		radius = 2000
	}
	return &Nominatim{baseURL: baseURL, client: client, radiusM: radius}
}

type nominatimResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

func (n *Nominatim) Geocode(ctx context.Context, query string, near *domain.Coordinates) (*Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrNotFound
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")
	if near != nil {
		params.Set("viewbox", viewbox(*near, n.radiusM))
		params.Set("bounded", "1")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", "tourcast/1.0")

	resp, err := n.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoder status %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, domain.ErrNotFound
	}
	lat, latErr := strconv.ParseFloat(results[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(results[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		return nil, domain.ErrNotFound
	}
	return &Place{
		DisplayName: results[0].DisplayName,
		Coordinates: domain.Coordinates{Latitude: lat, Longitude: lon},
	}, nil
}

// viewbox builds a lon/lat bounding box of roughly radius meters around the
// anchor. One degree of latitude is ~111km; longitude shrinks with latitude.
func viewbox(c domain.Coordinates, radiusM float64) string {
	dLat := radiusM / 111000.0
	cosLat := math.Abs(math.Cos(c.Latitude * math.Pi / 180))
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	dLon := radiusM / (111000.0 * cosLat)
	return fmt.Sprintf("%f,%f,%f,%f", c.Longitude-dLon, c.Latitude+dLat, c.Longitude+dLon, c.Latitude-dLat)
}
