// Package places wraps the Google Maps Places and Geocoding APIs: the
// attractions tool and the location validator used by the cascade.
package places

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	apperrors "travel-assistant/internal/common/errors"
	"travel-assistant/internal/models"
)

const (
	toolName  = "attractions"
	minRating = 4.0
	maxPlaces = 5
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Service looks up attractions and validates places with Google Maps.
type Service struct {
	client *maps.Client
	logger Logger
}

// Place is a simplified TextSearch result.
type Place struct {
	Name             string
	Address          string
	Rating           float32
	PlaceID          string
	UserRatingsTotal int
}

// geocodeTypes are the result types that count as a real travel location.
var geocodeTypes = map[string]bool{
	"locality":                    true,
	"country":                     true,
	"administrative_area_level_1": true,
	"administrative_area_level_2": true,
	"colloquial_area":             true,
	"natural_feature":             true,
	"archipelago":                 true,
	"sublocality":                 true,
}

// NewService creates a Maps-backed service.
func NewService(apiKey string, log Logger, opts ...maps.ClientOption) (*Service, error) {
	if apiKey == "" {
		return nil, errors.New("maps api key is required")
	}
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Service{
		client: client,
		logger: log.With(map[string]interface{}{"collaborator": "maps"}),
	}, nil
}

// Attractions lists well-rated tourist attractions in city. profile (for
// example "family") is added to the query when set.
func (s *Service) Attractions(ctx context.Context, city, profile string) (*models.ToolResult, error) {
	if strings.TrimSpace(city) == "" {
		return models.ToolFailure("Which city should I look for attractions in?"), nil
	}

	query := "top attractions in " + city
	if profile != "" {
		query = profile + " friendly " + query
	}
	resp, err := s.client.TextSearch(ctx, &maps.TextSearchRequest{
		Query:    query,
		Language: "en",
		Type:     maps.PlaceTypeTouristAttraction,
	})
	if err != nil {
		s.logger.Warn("places api error", map[string]interface{}{"city": city, "error": err.Error()})
		return nil, apperrors.NewToolFailedError(toolName, err)
	}

	places := topRated(resp.Results)
	if len(places) == 0 {
		return models.ToolFailure(fmt.Sprintf("I couldn't find well-rated attractions in %s.", city)), nil
	}

	result := &models.ToolResult{OK: true}
	lines := make([]string, 0, len(places))
	for i, p := range places {
		lines = append(lines, fmt.Sprintf("%d. %s (%.1f★, %d reviews) %s", i+1, p.Name, p.Rating, p.UserRatingsTotal, p.Address))
		result.Facts = append(result.Facts, models.Fact{
			Source: "google_places",
			Key:    p.PlaceID,
			Value:  p.Name,
			URL:    "https://www.google.com/maps/place/?q=place_id:" + p.PlaceID,
		})
	}
	result.Summary = fmt.Sprintf("Top attractions in %s:\n%s", city, strings.Join(lines, "\n"))
	return result, nil
}

func topRated(results []maps.PlacesSearchResult) []Place {
	var out []Place
	for _, r := range results {
		if r.Rating < minRating {
			continue
		}
		out = append(out, Place{
			Name:             r.Name,
			Address:          r.FormattedAddress,
			Rating:           r.Rating,
			PlaceID:          r.PlaceID,
			UserRatingsTotal: r.UserRatingsTotal,
		})
		if len(out) >= maxPlaces {
			break
		}
	}
	return out
}

// Validate reports whether name geocodes to a city, region or country.
// Errors are returned as-is; the caller decides how to fail.
func (s *Service) Validate(ctx context.Context, name string) (bool, error) {
	results, err := s.client.Geocode(ctx, &maps.GeocodingRequest{Address: name})
	if err != nil {
		return false, apperrors.NewGeocodeFailedError(name, err)
	}
	for _, r := range results {
		if r.PartialMatch {
			continue
		}
		for _, t := range r.Types {
			if geocodeTypes[t] {
				return true, nil
			}
		}
	}
	return false, nil
}
