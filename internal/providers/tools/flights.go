package tools

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	apihttp "travel-assistant/internal/common/http"
	"travel-assistant/internal/models"
)

const maxOffers = 3

type FlightsClient struct {
	http   *apihttp.Client
	logger Logger
}

type flightOffer struct {
	Carrier   string  `json:"carrier"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
	Departure string  `json:"departure"`
	Arrival   string  `json:"arrival"`
	Stops     int     `json:"stops"`
	URL       string  `json:"url"`
}

// NewFlightsClient creates a flight search tool client.
func NewFlightsClient(cfg HTTPConfig, log Logger) *FlightsClient {
	return &FlightsClient{
		http: apihttp.NewClient(cfg.BaseURL, cfg.Timeout,
			apihttp.WithHeader("X-API-Key", cfg.APIKey),
			apihttp.WithRetries(cfg.MaxRetries),
		),
		logger: log.With(map[string]interface{}{"tool": ToolFlights}),
	}
}

func (c *FlightsClient) Flights(ctx context.Context, origin, destination, dates string) (*models.ToolResult, error) {
	if destination == "" {
		return models.ToolFailure("I need a destination to look up flights."), nil
	}
	params := url.Values{}
	params.Set("destination", destination)
	if origin != "" {
		params.Set("origin", origin)
	}
	if dates != "" {
		params.Set("dates", dates)
	}

	var resp struct {
		Offers []flightOffer `json:"offers"`
	}
	if err := c.http.GetJSON(ctx, "/v1/flights", params, &resp); err != nil {
		if notFound(err) {
			return models.ToolFailure(fmt.Sprintf("I couldn't find flights to %s.", destination)), nil
		}
		c.logger.Warn("flight search failed", map[string]interface{}{"destination": destination, "error": err.Error()})
		return nil, toolError(ToolFlights, err)
	}
	if len(resp.Offers) == 0 {
		return models.ToolFailure(fmt.Sprintf("No flights to %s matched those dates.", destination)), nil
	}

	sort.SliceStable(resp.Offers, func(i, j int) bool {
		return resp.Offers[i].Price < resp.Offers[j].Price
	})
	offers := resp.Offers
	if len(offers) > maxOffers {
		offers = offers[:maxOffers]
	}

	route := destination
	if origin != "" {
		route = origin + " → " + destination
	}
	result := &models.ToolResult{OK: true}
	lines := make([]string, 0, len(offers))
	for i, o := range offers {
		lines = append(lines, fmt.Sprintf("%d. %s, %s %.0f, departs %s, %s",
			i+1, o.Carrier, o.Currency, o.Price, o.Departure, stopsLabel(o.Stops)))
		result.Facts = append(result.Facts, models.Fact{
			Source: ToolFlights,
			Key:    fmt.Sprintf("offer:%d", i+1),
			Value:  fmt.Sprintf("%s %s %.0f", o.Carrier, o.Currency, o.Price),
			URL:    o.URL,
		})
	}
	result.Summary = fmt.Sprintf("Cheapest flights %s:\n%s", route, strings.Join(lines, "\n"))
	return result, nil
}

func stopsLabel(n int) string {
	switch n {
	case 0:
		return "nonstop"
	case 1:
		return "1 stop"
	default:
		return fmt.Sprintf("%d stops", n)
	}
}
