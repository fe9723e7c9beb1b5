// Package errnorm maps heterogeneous backend, wallet and chain errors to a
// small display taxonomy.
package errnorm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

// FallbackMessage is shown when nothing usable can be extracted.
const FallbackMessage = "An unexpected error occurred"

const maxDetails = 200

// Normalized is the display form of an error.
type Normalized struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Action  string `json:"action,omitempty"`
}

var (
	reSeeURL      = regexp.MustCompile(`(?i)\[ See: https?://[^\]]+\]`)
	reErrorObject = regexp.MustCompile(`\(error=\{[\s\S]*?\}\)$`)
	reMethod      = regexp.MustCompile(`(?i), method="[^"]+"`)
	reTransaction = regexp.MustCompile(`, transaction=\{[\s\S]*?\}$`)
	reVersion     = regexp.MustCompile(`(?i), version=[^\s]+`)
	reSpaces      = regexp.MustCompile(`\s+`)
	reWordStart   = regexp.MustCompile(`\b\w`)
)

// Normalize converts any error-like value into its display form. Accepted
// inputs are error values (including *domain.APIError anywhere in the chain),
// decoded JSON objects, raw JSON bytes, strings and nil.
func Normalize(v any) Normalized {
	switch e := v.(type) {
	case nil:
		return Normalized{Message: FallbackMessage}
	case string:
		return normalizeMessage(e)
	case []byte:
		return normalizeBytes(e)
	case json.RawMessage:
		return normalizeBytes(e)
	case map[string]any:
		return normalizeObject(e)
	case error:
		return normalizeError(e)
	default:
		return Normalized{Message: FallbackMessage, Details: stringify(v)}
	}
}

// Reason normalizes a stored failure reason, which is either plain text or
// a serialized JSON object.
func Reason(reason string) Normalized {
	trimmed := strings.TrimSpace(reason)
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return normalizeBytes([]byte(trimmed))
	}
	return normalizeMessage(trimmed)
}

// Display returns the message line of the normalized error.
func Display(v any) string {
	return Normalize(v).Message
}

// Short returns the title when present, else the message.
func Short(v any) string {
	n := Normalize(v)
	if n.Title != "" {
		return n.Title
	}
	return n.Message
}

func normalizeError(err error) Normalized {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return normalizeAPIBody(apiErr.Message, apiErr.Code, apiErr.Details)
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return Normalized{
			Title:   "Invalid Order",
			Message: strings.Join(verr.Problems, ". "),
		}
	}

	if n, ok := classifySentinel(err); ok {
		return n
	}
	return normalizeMessage(err.Error())
}

// normalizeAPIBody classifies a backend message and falls back to the
// body's code (as a title) and details.
func normalizeAPIBody(message, code string, details any) Normalized {
	n := normalizeMessage(message)
	if n.Title == "" && code != "" {
		n.Title = titleFromCode(code)
	}
	if n.Details == "" && details != nil {
		if s, ok := details.(string); ok {
			n.Details = s
		} else {
			n.Details = stringify(details)
		}
	}
	return n
}

func normalizeBytes(b []byte) Normalized {
	var obj map[string]any
	if err := json.Unmarshal(b, &obj); err == nil {
		return normalizeObject(obj)
	}
	return normalizeMessage(string(b))
}

func normalizeObject(obj map[string]any) Normalized {
	if resp, ok := obj["response"].(map[string]any); ok {
		if data, ok := resp["data"].(map[string]any); ok {
			if msg, ok := data["message"].(string); ok && msg != "" {
				code, _ := data["code"].(string)
				return normalizeAPIBody(msg, code, data["details"])
			}
		}
	}
	if nested, ok := obj["error"].(map[string]any); ok {
		if msg, ok := nested["message"]; ok && msg != nil && msg != "" {
			return normalizeMessage(fmt.Sprint(msg))
		}
	}
	if msg, ok := obj["message"]; ok && msg != nil && msg != "" {
		return normalizeMessage(fmt.Sprint(msg))
	}
	if reason, ok := obj["reason"]; ok && reason != nil && reason != "" {
		return normalizeMessage(fmt.Sprint(reason))
	}
	return Normalized{Message: FallbackMessage, Details: stringify(obj)}
}

func normalizeMessage(message string) Normalized {
	if n, ok := classify(message); ok {
		return n
	}

	cleaned := Clean(message)
	if utf8.RuneCountInString(cleaned) > maxDetails || strings.Contains(cleaned, "{") || strings.Contains(cleaned, `"code"`) {
		return Normalized{
			Title:   "Transaction Failed",
			Message: "The transaction could not be completed.",
			Details: truncate(cleaned, maxDetails),
		}
	}
	if cleaned == "" {
		return Normalized{Message: FallbackMessage}
	}
	return Normalized{Message: cleaned}
}

// truncate cuts s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// Clean strips provider noise (doc links, embedded error and transaction
// objects, method and version annotations) and collapses whitespace.
func Clean(message string) string {
	s := reSeeURL.ReplaceAllString(message, "")
	s = reErrorObject.ReplaceAllString(s, "")
	s = reMethod.ReplaceAllString(s, "")
	s = reTransaction.ReplaceAllString(s, "")
	s = reVersion.ReplaceAllString(s, "")
	return reSpaces.ReplaceAllString(strings.TrimSpace(s), " ")
}

func titleFromCode(code string) string {
	return reWordStart.ReplaceAllStringFunc(strings.ReplaceAll(code, "_", " "), strings.ToUpper)
}

func stringify(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
