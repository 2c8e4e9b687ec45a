package database

import (
	"net/url"
	"strings"
)

// ConstructDatabaseURL points baseURL at databaseName. Local development
// servers run without TLS, so sslmode=disable is added unless the URL sets it.
func ConstructDatabaseURL(baseURL, databaseName string) string {
	if databaseName == "" {
		return baseURL
	}

	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" {
		// Not a URL form we understand, fall back to plain concatenation
		return strings.TrimRight(baseURL, "/") + "/" + databaseName
	}

	parsed.Path = "/" + databaseName
	query := parsed.Query()
	if query.Get("sslmode") == "" {
		query.Set("sslmode", "disable")
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// RedactURL hides the password of a database URL for logging
func RedactURL(databaseURL string) string {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return "<unparseable>"
	}
	return parsed.Redacted()
}
