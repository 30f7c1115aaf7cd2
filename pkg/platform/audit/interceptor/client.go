package interceptor

import (
	"github.com/mssola/useragent"
)

// describeClient summarises a User-Agent header for record metadata.
// Returns nil for an empty header.
func describeClient(header string) map[string]any {
	if header == "" {
		return nil
	}
	ua := useragent.New(header)
	browser, version := ua.Browser()
	client := map[string]any{
		"browser": browser,
		"os":      ua.OS(),
		"mobile":  ua.Mobile(),
	}
	if version != "" {
		client["browserVersion"] = version
	}
	if ua.Bot() {
		client["bot"] = true
	}
	return client
}
