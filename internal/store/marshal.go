package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/exportgraph/internal/ir"
	"github.com/roach88/exportgraph/internal/resolve"
)

// marshalObject converts an IRObject to canonical JSON TEXT for storage.
func marshalObject(obj ir.IRObject) (string, error) {
	if obj == nil {
		obj = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal object: %w", err)
	}
	return string(data), nil
}

// refsObject flattens resolved refs to {role: {"kind", "id"} | null}.
// Embedded objects are stored once under their own row, not inline.
func refsObject(refs map[string]resolve.Ref) ir.IRObject {
	out := make(ir.IRObject, len(refs))
	for role, ref := range refs {
		if ref.IsNull() {
			out[role] = ir.IRNull{}
			continue
		}
		out[role] = ir.IRObject{
			"kind": ir.IRString(ref.Kind),
			"id":   ir.IRString(ref.ID),
		}
	}
	return out
}

// unmarshalObject parses canonical JSON TEXT to IRObject.
// Uses ir.IRObject.UnmarshalJSON which keeps large integers exact.
func unmarshalObject(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	return obj, nil
}
