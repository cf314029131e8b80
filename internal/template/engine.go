package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"forge/internal/pkg/errors"
)

var placeholderRe = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// RenderRequest is a fully substituted render document ready for submission.
type RenderRequest struct {
	// ClientID correlates the submission with renderer-side events.
	ClientID string
	Document map[string]any
}

// Engine builds render requests from stored templates.
type Engine struct {
	store *Store
}

func NewEngine(store *Store) *Engine {
	return &Engine{store: store}
}

// Build loads the named template, substitutes params into it and validates
// the result. Substitution happens on the serialized document so that
// boolean and numeric values replace their surrounding quotes; the result
// is re-parsed, preserving type fidelity.
func (e *Engine) Build(name string, params map[string]any) (*RenderRequest, error) {
	t, err := e.store.Load(name)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(t.Document)
	if err != nil {
		return nil, errors.Wrap(err, "template.Engine.Build", "serializing template")
	}
	text := string(raw)

	for key, value := range params {
		token := `"{{` + key + `}}"`
		text = strings.ReplaceAll(text, token, encodeValue(value))
	}

	if leftover := scanPlaceholders(text); len(leftover) > 0 {
		return nil, errors.Validationf("unresolved placeholders: %s", strings.Join(leftover, ", ")).
			WithField("placeholders", leftover).
			WithField("template", name)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, errors.Validationf("template %q is not valid JSON after substitution: %v", name, err)
	}

	if err := Validate(doc); err != nil {
		return nil, err
	}

	return &RenderRequest{
		ClientID: uuid.NewString(),
		Document: doc,
	}, nil
}

// Validate checks the structural shape a renderer requires: a non-empty
// document whose every node is a map carrying class_type and inputs.
func Validate(doc map[string]any) error {
	if len(doc) == 0 {
		return errors.Validation("render document cannot be empty")
	}

	for nodeID, raw := range doc {
		node, ok := raw.(map[string]any)
		if !ok {
			return errors.Validationf("node %s must be an object", nodeID)
		}
		if _, ok := node["class_type"]; !ok {
			return errors.Validationf("node %s missing required class_type field", nodeID)
		}
		if _, ok := node["inputs"]; !ok {
			return errors.Validationf("node %s missing required inputs field", nodeID)
		}
	}

	return nil
}

// Parameters returns the deduplicated placeholder names of a template,
// sorted for stable output.
func (e *Engine) Parameters(name string) ([]string, error) {
	t, err := e.store.Load(name)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(t.Document)
	if err != nil {
		return nil, errors.Wrap(err, "template.Engine.Parameters", "serializing template")
	}

	seen := make(map[string]struct{})
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(string(raw), -1) {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	sort.Strings(out)

	return out, nil
}

// List returns available template names with descriptions.
func (e *Engine) List() (map[string]string, error) {
	return e.store.List()
}

// encodeValue renders a parameter value as the JSON fragment that replaces
// the quoted placeholder token. Booleans and numbers substitute unquoted;
// strings are escaped and re-quoted; anything else is stringified.
func encodeValue(v any) string {
	switch val := v.(type) {
	case bool:
		return strconv.FormatBool(val)
	case string:
		b, _ := json.Marshal(val)
		return string(b)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		b, _ := json.Marshal(fmt.Sprint(val))
		return string(b)
	}
}

func scanPlaceholders(text string) []string {
	matches := placeholderRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, m := range matches {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	sort.Strings(out)
	return out
}
