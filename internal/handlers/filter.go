package handlers

import (
	"net/url"
	"strings"

	"rfm-dashboard/internal/models"
)

// ParseFilter reads a FilterSpec from the from, to, category and country
// query parameters. A parameter given once is a comma-separated list; repeat
// the parameter to select values that contain commas.
func ParseFilter(q url.Values) (models.FilterSpec, error) {
	return models.ParseFilter(q.Get("from"), q.Get("to"), queryValues(q, "category"), queryValues(q, "country"))
}

func queryValues(q url.Values, key string) []string {
	values := q[key]
	if len(values) != 1 {
		return values
	}
	return strings.Split(values[0], ",")
}
