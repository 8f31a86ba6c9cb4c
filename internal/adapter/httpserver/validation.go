package httpserver

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	maxVideoIDLen  = 64
	maxQueryLen    = 200
	maxSearchLimit = 50
)

var videoIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

func invalid(field, code, msg string) ValidationResult {
	return ValidationResult{Valid: false, Errors: []ValidationError{{Field: field, Code: code, Message: msg}}}
}

// ParseVideoID accepts a bare video id or a watch, short, embed or youtu.be
// URL and returns the id. The result still needs ValidateVideoID.
func ParseVideoID(input string) string {
	input = strings.TrimSpace(input)
	if !strings.Contains(input, "/") {
		return input
	}
	if !strings.Contains(input, "://") {
		input = "https://" + input
	}
	u, err := url.Parse(input)
	if err != nil {
		return input
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	path := strings.Trim(u.Path, "/")
	switch host {
	case "youtu.be":
		return strings.SplitN(path, "/", 2)[0]
	case "youtube.com", "music.youtube.com":
		if v := u.Query().Get("v"); v != "" {
			return v
		}
		for _, prefix := range []string{"shorts/", "embed/", "live/", "v/"} {
			if rest, ok := strings.CutPrefix(path, prefix); ok {
				return strings.SplitN(rest, "/", 2)[0]
			}
		}
	}
	return input
}

// ValidateVideoID validates a video id
func ValidateVideoID(id string) ValidationResult {
	if id == "" {
		return invalid("video_id", "REQUIRED", "Video ID is required")
	}
	if len(id) > maxVideoIDLen {
		return invalid("video_id", "TOO_LONG", "Video ID is too long (max 64 characters)")
	}
	if !videoIDPattern.MatchString(id) {
		return invalid("video_id", "INVALID_FORMAT", "Video ID contains invalid characters")
	}
	return ValidationResult{Valid: true}
}

// ValidateSearch validates search parameters. An empty limit is allowed and
// means the upstream default.
func ValidateSearch(query, limit string) ValidationResult {
	var errs []ValidationError
	switch {
	case strings.TrimSpace(query) == "":
		errs = append(errs, ValidationError{Field: "q", Code: "REQUIRED", Message: "Search query is required"})
	case utf8.RuneCountInString(query) > maxQueryLen:
		errs = append(errs, ValidationError{Field: "q", Code: "TOO_LONG", Message: "Search query is too long (max 200 characters)"})
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > maxSearchLimit {
			errs = append(errs, ValidationError{Field: "max", Code: "INVALID_FORMAT", Message: "max must be between 1 and 50"})
		}
	}
	if len(errs) > 0 {
		return ValidationResult{Valid: false, Errors: errs}
	}
	return ValidationResult{Valid: true}
}

// SanitizeString sanitizes a string input
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	input = strings.TrimSpace(input)
	if len(input) > 1000 {
		input = input[:1000]
	}
	if !utf8.ValidString(input) {
		input = strings.ToValidUTF8(input, "")
	}
	return input
}
