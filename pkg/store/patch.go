package store

import (
	"fmt"

	"github.com/tripnest/tripsync/internal/codec"
	"github.com/tripnest/tripsync/pkg/models"
)

// applyPatch lays patch over base by JSON field name.
func applyPatch[E any](c codec.Codec, base E, patch models.Patch) (E, error) {
	if len(patch) == 0 {
		return base, nil
	}

	var out E

	raw, err := c.Marshal(base)
	if err != nil {
		return out, fmt.Errorf("encode base: %w", err)
	}

	fields := map[string]any{}
	if err := c.Unmarshal(raw, &fields); err != nil {
		return out, fmt.Errorf("decode base: %w", err)
	}
	for k, v := range patch {
		fields[k] = v
	}

	raw, err = c.Marshal(fields)
	if err != nil {
		return out, fmt.Errorf("encode patched: %w", err)
	}
	if err := c.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode patched: %w", err)
	}
	return out, nil
}
