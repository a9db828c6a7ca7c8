package apperror

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ProblemContentType is the media type of Problem responses.
const ProblemContentType = "application/problem+json"

// Problem is the JSON body rendered for failed API calls.
type Problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ProblemFor builds a Problem for err. The status comes from StatusCode and
// the detail from the outermost *Error message when there is one.
func ProblemFor(title string, err error) Problem {
	status := StatusCode(err)
	if title == "" {
		title = http.StatusText(status)
	}

	detail := ""
	var appErr *Error
	if errors.As(err, &appErr) {
		detail = appErr.Message
	} else if err != nil {
		detail = err.Error()
	}

	return Problem{Title: title, Status: status, Detail: detail}
}

// Write renders p with its status code.
func (p Problem) Write(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", ProblemContentType)
	w.WriteHeader(p.Status)
	return json.NewEncoder(w).Encode(p)
}
