package selection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
)

// rawDecision keeps every field raw so absent and null can be told apart.
type rawDecision struct {
	InputQuery          json.RawMessage `json:"input_query"`
	SelectedProductID   json.RawMessage `json:"selected_product_id"`
	SelectedProductName json.RawMessage `json:"selected_product_name"`
	Confidence          json.RawMessage `json:"confidence"`
	Reason              json.RawMessage `json:"reason"`
}

// ParseDecisions parses the selection response. It must be a single JSON
// array of decision objects, optionally inside one ``` fence. Unknown
// fields, missing fields, wrong types, an invalid confidence or a half-set
// selection are all ParseFailures. Nothing is defaulted.
func ParseDecisions(response string) ([]Decision, error) {
	body := stripFence(strings.TrimSpace(response))
	if !strings.HasPrefix(body, "[") {
		return nil, cmerrors.ParseFailure("selection response is not a JSON array", nil).
			WithDetail("prefix", preview(body))
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()

	var raws []rawDecision
	if err := dec.Decode(&raws); err != nil {
		return nil, cmerrors.ParseFailure("selection response is not valid JSON", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, cmerrors.ParseFailure("selection response has trailing content after the array", nil)
	}

	decisions := make([]Decision, len(raws))
	for i, raw := range raws {
		d, err := raw.decision()
		if err != nil {
			return nil, cmerrors.ParseFailure(fmt.Sprintf("decision %d: %s", i+1, err.Error()), nil).
				WithDetail("index", fmt.Sprint(i))
		}
		decisions[i] = d
	}
	return decisions, nil
}

func (r rawDecision) decision() (Decision, error) {
	var d Decision

	query, err := requiredString("input_query", r.InputQuery)
	if err != nil {
		return d, err
	}
	d.InputQuery = query

	conf, err := requiredString("confidence", r.Confidence)
	if err != nil {
		return d, err
	}
	d.Confidence = Confidence(conf)
	if !d.Confidence.Valid() {
		return d, fmt.Errorf("confidence %q is not one of high, medium, low", conf)
	}

	reason, err := requiredString("reason", r.Reason)
	if err != nil {
		return d, err
	}
	d.Reason = reason

	id, err := nullableString("selected_product_id", r.SelectedProductID)
	if err != nil {
		return d, err
	}
	name, err := nullableString("selected_product_name", r.SelectedProductName)
	if err != nil {
		return d, err
	}
	if (id == nil) != (name == nil) {
		return d, fmt.Errorf("selected_product_id and selected_product_name must both be null or both be set")
	}
	d.SelectedProductID = id
	d.SelectedProductName = name

	return d, nil
}

func requiredString(field string, raw json.RawMessage) (string, error) {
	if raw == nil || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("%s is required", field)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s must be a string", field)
	}
	return s, nil
}

// nullableString requires the field to be present. Null yields nil; an
// empty string is rejected.
func nullableString(field string, raw json.RawMessage) (*string, error) {
	if raw == nil {
		return nil, fmt.Errorf("%s is required (use null for no match)", field)
	}
	if bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%s must be a string or null", field)
	}
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%s must not be empty; use null for no match", field)
	}
	return &s, nil
}

// stripFence removes one surrounding ``` or ```json fence.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := strings.TrimSuffix(s, "```")
	nl := strings.IndexByte(inner, '\n')
	if nl < 0 {
		return s
	}
	return strings.TrimSpace(inner[nl+1:])
}

func preview(s string) string {
	const max = 40
	r := []rune(s)
	if len(r) > max {
		return string(r[:max]) + "..."
	}
	return s
}
