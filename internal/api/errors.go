package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// NetworkMessage is shown whenever the server could not be reached.
const NetworkMessage = "A network error occurred. Please check your connection and try again."

var (
	// ErrNetwork marks transport failures: no response was received.
	ErrNetwork = errors.New("api: network error")
	// ErrUnauthenticated marks calls attempted without a valid session.
	ErrUnauthenticated = errors.New("api: not signed in")
)

// Error is a server-reported failure (non-2xx response).
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api: server returned %d", e.Status)
	}
	return fmt.Sprintf("api: server returned %d: %s", e.Status, e.Detail)
}

// Describe turns err into the text a workflow shows the user: the server's
// detail verbatim, the connection message for transport failures, otherwise
// fallback.
func Describe(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr.Detail != "" {
			return apiErr.Detail
		}
		return fallback
	}
	if errors.Is(err, ErrNetwork) {
		return NetworkMessage
	}
	return fallback
}

// IsUnauthorized reports whether err means the session is missing or rejected.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrUnauthenticated) {
		return true
	}
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == 401
}

func parseDetail(body []byte) string {
	var parsed detailBody
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Detail) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(parsed.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(parsed.Detail, &items); err == nil {
		var msgs []string
		for _, item := range items {
			if msg := strings.TrimSpace(item.Msg); msg != "" {
				msgs = append(msgs, msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
