// Package ai holds helpers shared by the text-generation adapters.
package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencePattern         = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*\\n?(.*?)```")
	trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)
)

// ResponseCleaner extracts a JSON document from model output that may wrap it
// in markdown fences or surrounding prose.
type ResponseCleaner struct{}

// NewResponseCleaner creates a new response cleaner.
func NewResponseCleaner() *ResponseCleaner {
	return &ResponseCleaner{}
}

// CleanJSONResponse returns the best JSON candidate found in response.
// The result is not guaranteed to be valid JSON; use CleanAndValidateJSON for that.
func (rc *ResponseCleaner) CleanJSONResponse(response string) string {
	response = rc.removeMarkdownBlocks(response)
	response = rc.extractJSON(response)
	if !rc.IsValidJSON(response) {
		response = trailingCommaPattern.ReplaceAllString(response, "$1")
	}
	return strings.TrimSpace(response)
}

// removeMarkdownBlocks returns the body of the first fenced block, or the
// trimmed input when there is none.
func (rc *ResponseCleaner) removeMarkdownBlocks(response string) string {
	response = strings.TrimSpace(response)
	if m := fencePattern.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}
	// unterminated fence
	if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimPrefix(response, "```")
	}
	return strings.TrimSpace(response)
}

// extractJSON cuts the first balanced object or array out of mixed content.
// Brackets inside string literals are ignored.
func (rc *ResponseCleaner) extractJSON(response string) string {
	start := strings.IndexAny(response, "{[")
	if start == -1 {
		return response
	}
	open := response[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(response); i++ {
		c := response[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return response[start:]
}

// IsValidJSON checks if a string is valid JSON.
func (rc *ResponseCleaner) IsValidJSON(response string) bool {
	return json.Valid([]byte(response))
}

// CleanAndValidateJSON cleans response and requires the result to be a JSON
// object or array.
func (rc *ResponseCleaner) CleanAndValidateJSON(response string) (string, error) {
	cleaned := rc.CleanJSONResponse(response)
	if !rc.IsValidJSON(cleaned) {
		return "", &JSONValidationError{
			Original: response,
			Cleaned:  cleaned,
			Message:  "cleaned response is still not valid JSON",
		}
	}
	if c := cleaned[0]; c != '{' && c != '[' {
		return "", &JSONValidationError{
			Original: response,
			Cleaned:  cleaned,
			Message:  "response is JSON but not an object or array",
		}
	}
	return cleaned, nil
}

// JSONValidationError represents a JSON validation error.
type JSONValidationError struct {
	Original string
	Cleaned  string
	Message  string
}

func (e *JSONValidationError) Error() string {
	return e.Message
}
