package tools

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"travel-assistant/internal/models"
)

// CountryFacts reads reference data from Postgres.
//
//	CREATE TABLE country_facts (
//	    name       TEXT PRIMARY KEY,
//	    capital    TEXT NOT NULL,
//	    currency   TEXT NOT NULL,
//	    languages  TEXT NOT NULL,
//	    plug_types TEXT NOT NULL,
//	    visa_note  TEXT NOT NULL DEFAULT ''
//	);
type CountryFacts struct {
	db     *sql.DB
	logger Logger
}

// NewCountryFacts reads the country_facts table.
func NewCountryFacts(db *sql.DB, log Logger) *CountryFacts {
	return &CountryFacts{
		db:     db,
		logger: log.With(map[string]interface{}{"tool": ToolCountryFacts}),
	}
}

const countryQuery = `SELECT name, capital, currency, languages, plug_types, visa_note
FROM country_facts WHERE lower(name) = lower($1)`

func (c *CountryFacts) CountryFacts(ctx context.Context, country string) (*models.ToolResult, error) {
	country = strings.TrimSpace(country)
	if country == "" {
		return models.ToolFailure("Which country are you asking about?"), nil
	}

	var name, capital, currency, languages, plugs, visa string
	err := c.db.QueryRowContext(ctx, countryQuery, country).
		Scan(&name, &capital, &currency, &languages, &plugs, &visa)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ToolFailure(fmt.Sprintf("I don't have reference data for %s.", country)), nil
	}
	if err != nil {
		c.logger.Warn("country facts query failed", map[string]interface{}{"country": country, "error": err.Error()})
		return nil, toolError(ToolCountryFacts, err)
	}

	facts := []models.Fact{
		{Source: ToolCountryFacts, Key: "capital", Value: capital},
		{Source: ToolCountryFacts, Key: "currency", Value: currency},
		{Source: ToolCountryFacts, Key: "languages", Value: languages},
		{Source: ToolCountryFacts, Key: "plug_types", Value: plugs},
	}
	summary := fmt.Sprintf("%s: capital %s, currency %s, languages %s, plug types %s.",
		name, capital, currency, languages, plugs)
	if visa != "" {
		facts = append(facts, models.Fact{Source: ToolCountryFacts, Key: "visa", Value: visa})
		summary += " Visa: " + visa
	}
	return &models.ToolResult{OK: true, Summary: summary, Facts: facts}, nil
}
