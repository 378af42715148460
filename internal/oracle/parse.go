package oracle

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Regex definitions use \x60 for backticks because Go raw strings cannot contain them.
var fencedObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")

// parseJSONResponse decodes a model reply into T. Replies wrapped in a
// markdown fence or surrounded by prose are unwrapped first.
func parseJSONResponse[T any](response string) (*T, error) {
	response = strings.TrimSpace(response)
	payload := response

	switch {
	case strings.HasPrefix(response, "```"):
		if m := fencedObjectRegex.FindStringSubmatch(response); len(m) > 1 {
			payload = m[1]
		}
	case !strings.HasPrefix(response, "{"):
		first, last := strings.Index(response, "{"), strings.LastIndex(response, "}")
		if first != -1 && last > first {
			payload = response[first : last+1]
		}
	}

	var result T
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(payload, 500))
	}
	return &result, nil
}
