package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jwalitptl/booking-feed/internal/model"
)

// ExtractChanges turns the changes payload of a modified booking into an
// ordered change list. Producers send either an ordered list of
// {field, old, new} records or an object keyed by field name; the latter is
// ordered by field name so the result is deterministic.
func ExtractChanges(raw json.RawMessage) ([]model.Change, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '[':
		var changes []model.Change
		if err := json.Unmarshal(raw, &changes); err != nil {
			return nil, fmt.Errorf("decode change list: %w", err)
		}
		for i, c := range changes {
			if c.Field == "" {
				return nil, fmt.Errorf("change %d has no field", i)
			}
		}
		return changes, nil
	case '{':
		var byField map[string]struct {
			Old interface{} `json:"old"`
			New interface{} `json:"new"`
		}
		if err := json.Unmarshal(raw, &byField); err != nil {
			return nil, fmt.Errorf("decode change map: %w", err)
		}
		fields := make([]string, 0, len(byField))
		for field := range byField {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		changes := make([]model.Change, 0, len(fields))
		for _, field := range fields {
			changes = append(changes, model.Change{
				Field: field,
				Old:   byField[field].Old,
				New:   byField[field].New,
			})
		}
		return changes, nil
	default:
		return nil, fmt.Errorf("changes must be a list or an object")
	}
}
