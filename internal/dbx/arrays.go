package dbx

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UUIDArray renders ids as a Postgres array literal, to be bound to a
// parameter cast with ::uuid[].
func UUIDArray(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}

var arrayElemEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// TextArray renders items as a Postgres text[] literal with every element quoted.
func TextArray(items []string) string {
	parts := make([]string, len(items))
	for i, s := range items {
		parts[i] = `"` + arrayElemEscaper.Replace(s) + `"`
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// ParseUUIDJSON decodes the output of array_to_json(uuid[])::text. NULL and
// empty input decode to an empty slice.
func ParseUUIDJSON(raw []byte) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	if len(raw) == 0 || string(raw) == "null" {
		return ids, nil
	}
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode uuid array: %w", err)
	}
	return ids, nil
}
