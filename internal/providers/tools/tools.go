// Package tools holds the domain tools a turn can call: weather, flights
// and country facts.
package tools

import (
	"errors"
	"net/http"

	apperrors "travel-assistant/internal/common/errors"
	apihttp "travel-assistant/internal/common/http"
)

const (
	ToolWeather      = "weather"
	ToolFlights      = "flights"
	ToolCountryFacts = "country_facts"
	ToolAttractions  = "attractions"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// notFound reports whether the remote answered 404, which tools turn into
// an OK=false result rather than an error.
func notFound(err error) bool {
	var se *apihttp.StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

func toolError(tool string, err error) error {
	return apperrors.NewToolFailedError(tool, err)
}
