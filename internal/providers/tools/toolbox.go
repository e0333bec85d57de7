package tools

import (
	"context"

	"travel-assistant/internal/models"
)

type WeatherTool interface {
	Weather(ctx context.Context, city, dates string) (*models.ToolResult, error)
}

type FlightsTool interface {
	Flights(ctx context.Context, origin, destination, dates string) (*models.ToolResult, error)
}

type CountryFactsTool interface {
	CountryFacts(ctx context.Context, country string) (*models.ToolResult, error)
}

// AttractionsTool is satisfied by *places.Service.
type AttractionsTool interface {
	Attractions(ctx context.Context, city, profile string) (*models.ToolResult, error)
}

// Toolbox groups the tools behind one value. A nil tool answers with an
// OK=false result instead of an error.
type Toolbox struct {
	WeatherTool      WeatherTool
	FlightsTool      FlightsTool
	CountryFactsTool CountryFactsTool
	AttractionsTool  AttractionsTool
}

func unavailable(what string) *models.ToolResult {
	return models.ToolFailure("Sorry, " + what + " isn't available right now.")
}

func (b *Toolbox) Weather(ctx context.Context, city, dates string) (*models.ToolResult, error) {
	if b.WeatherTool == nil {
		return unavailable("the weather service"), nil
	}
	return b.WeatherTool.Weather(ctx, city, dates)
}

func (b *Toolbox) Flights(ctx context.Context, origin, destination, dates string) (*models.ToolResult, error) {
	if b.FlightsTool == nil {
		return unavailable("flight search"), nil
	}
	return b.FlightsTool.Flights(ctx, origin, destination, dates)
}

func (b *Toolbox) CountryFacts(ctx context.Context, country string) (*models.ToolResult, error) {
	if b.CountryFactsTool == nil {
		return unavailable("country information"), nil
	}
	return b.CountryFactsTool.CountryFacts(ctx, country)
}

func (b *Toolbox) Attractions(ctx context.Context, city, profile string) (*models.ToolResult, error) {
	if b.AttractionsTool == nil {
		return unavailable("attraction search"), nil
	}
	return b.AttractionsTool.Attractions(ctx, city, profile)
}
