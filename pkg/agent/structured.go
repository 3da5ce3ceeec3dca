package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/agentrun/pkg/model"
)

// ErrStructuredOutput is returned when a structured reply is not valid JSON or does not match
// the configured schema.
var ErrStructuredOutput = errors.New("structured output is invalid")

func compileSchema(schema map[string]any) (*gojsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, errors.New("schema is empty")
	}
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
}

// decodeStructured decodes text according to the response format. Plain text formats return
// nil.
func decodeStructured(format *model.ResponseFormat, text string) (any, error) {
	if format == nil || format.Type == "" || format.Type == model.FormatText {
		return nil, nil
	}

	var value any
	if err := json.Unmarshal([]byte(stripFence(text)), &value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructuredOutput, err)
	}
	if format.Type != model.FormatJSONSchema {
		return value, nil
	}

	schema, err := compileSchema(format.Schema)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructuredOutput, err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(value))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructuredOutput, err)
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrStructuredOutput, strings.Join(errs, "; "))
	}
	return value, nil
}

// stripFence removes a surrounding ```json fence some models add.
func stripFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "```"))
}
