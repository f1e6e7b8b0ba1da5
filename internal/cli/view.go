package cli

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/exportgraph/internal/ir"
	"github.com/roach88/exportgraph/internal/resolve"
	"github.com/roach88/exportgraph/internal/result"
)

// RefView is one role of a merged link as printed. Embedded objects are
// flattened back to kind and id; the full objects are reachable through
// the stored run.
type RefView struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// ResultView is the printable form of one merged result.
type ResultView struct {
	Type     string              `json:"type"`
	Kind     string              `json:"kind"`
	ID       string              `json:"id,omitempty"`
	Fields   ir.IRObject         `json:"fields,omitempty"`
	Refs     map[string]*RefView `json:"refs,omitempty"`
	Message  string              `json:"message,omitempty"`
	Source   string              `json:"source,omitempty"`
	RecordID string              `json:"record_id,omitempty"`
	Time     string              `json:"time,omitempty"`
}

func newResultView(r result.Result[*resolve.Resolved]) ResultView {
	v, e := r.Get()
	if e != nil {
		view := ResultView{
			Type:     "error",
			Kind:     string(e.Kind),
			Message:  e.Error(),
			Source:   e.Source,
			RecordID: e.RecordID,
		}
		if ts, ok := result.ExtractTimestamp(e); ok {
			view.Time = ts.UTC().Format(time.RFC3339Nano)
		}
		return view
	}

	view := ResultView{
		Type:   v.Type.String(),
		Kind:   v.Kind,
		ID:     v.ID,
		Fields: v.Fields,
	}
	if len(v.Refs) > 0 {
		view.Refs = make(map[string]*RefView, len(v.Refs))
		for role, ref := range v.Refs {
			if ref.IsNull() {
				view.Refs[role] = nil
				continue
			}
			view.Refs[role] = &RefView{Kind: ref.Kind, ID: ref.ID}
		}
	}
	return view
}

// Text renders the view on one line:
//
//	link message d2 reply_to=d1 sender=a2 thread=t1 {"text":"sure"}
//	error missing_reference desktop: missing reference "sender" (record d3)
func (v ResultView) Text() string {
	if v.Type == "error" {
		return fmt.Sprintf("error %s %s", v.Kind, v.Message)
	}

	parts := []string{v.Type, v.Kind, v.ID}
	roles := make([]string, 0, len(v.Refs))
	for role := range v.Refs {
		roles = append(roles, role)
	}
	slices.Sort(roles)
	for _, role := range roles {
		id := "-"
		if ref := v.Refs[role]; ref != nil {
			id = ref.ID
		}
		parts = append(parts, role+"="+id)
	}

	fields, err := ir.MarshalCanonical(v.Fields)
	if err != nil {
		fields = []byte("{}")
	}
	parts = append(parts, string(fields))
	return strings.Join(parts, " ")
}
