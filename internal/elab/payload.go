package elab

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID accepts identifiers encoded either as JSON numbers or as strings.
type ID int64

func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", s)
	}
	*id = ID(n)
	return nil
}

// Resource is the subset of fields shared by items, item types and templates.
type Resource struct {
	ID    ID     `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Template = Resource

// Experiment is the subset of an eLabFTW experiment elabgate reads.
type Experiment struct {
	ID          ID              `json:"id"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	StatusTitle string          `json:"status_title"`
	StatusName  string          `json:"status_name"`
	StatusLabel string          `json:"status_label"`
	Status      json.RawMessage `json:"status"`
	CreatedAt   string          `json:"created_at"`
	ModifiedAt  string          `json:"modified_at"`
}

const unknownStatus = "unknown"

// StatusText returns the most descriptive status the payload carries.
func (e *Experiment) StatusText() string {
	for _, s := range []string{e.StatusTitle, e.StatusName, e.StatusLabel} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	raw := bytes.TrimSpace(e.Status)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return unknownStatus
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
		return unknownStatus
	}
	return string(raw)
}

// Status is the status view of an experiment.
type Status struct {
	ExperimentID int64  `json:"experiment_id"`
	Title        string `json:"title"`
	Status       string `json:"status"`
}

// decodeList accepts a bare JSON array or an object wrapping the array in
// an items, data or results key.
func decodeList[T any](body []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var out []T
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, err
	}
	for _, key := range []string{"items", "data", "results"} {
		raw := bytes.TrimSpace(wrapper[key])
		if len(raw) == 0 || raw[0] != '[' {
			continue
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, nil
}
