package artifact

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"docrag/internal/domain"
)

//go:embed schemas/*.json
var schemaFS embed.FS

type kind string

const (
	kindText      kind = "text"
	kindChunks    kind = "chunks"
	kindEmbedding kind = "embedding"
	kindFailed    kind = "failed"
)

var schemas = mustLoadSchemas(kindText, kindChunks, kindEmbedding, kindFailed)

func mustLoadSchemas(kinds ...kind) map[kind]*gojsonschema.Schema {
	out := make(map[kind]*gojsonschema.Schema, len(kinds))
	for _, k := range kinds {
		raw, err := schemaFS.ReadFile("schemas/" + string(k) + ".json")
		if err != nil {
			panic(fmt.Sprintf("artifact: missing schema %s: %v", k, err))
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			panic(fmt.Sprintf("artifact: invalid schema %s: %v", k, err))
		}
		out[k] = s
	}
	return out
}

// decode validates data against the schema for k and then decodes it
// strictly into v.
func decode(k kind, data []byte, v any) error {
	result, err := schemas[k].Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrSchema, k, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s: %s", domain.ErrSchema, k, strings.Join(msgs, "; "))
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrSchema, k, err)
	}
	return nil
}
