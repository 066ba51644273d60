package entities

import (
	"strings"
	"time"

	"github.com/prudhvinik1/tenantsync/internal/models"
	"github.com/prudhvinik1/tenantsync/internal/syncerr"
)

// Normalize returns a canonical copy of a client record: kind defaults are
// applied, version is an integer >= 1, the deletion indicator uses the kind's
// representation and timestamps are present. clientTime stands in for a
// missing client updatedAt. The input is not modified.
func (k Kind) Normalize(rec models.Record, op models.Operation, clientTime time.Time) (models.Record, error) {
	if rec == nil {
		return nil, syncerr.Validation("%s: change data is required", k.Name)
	}
	out := rec.Clone()

	if op == models.OperationDelete {
		if !k.Deletion.Tracked() {
			return nil, syncerr.Validation("%s: entity type does not support deletion", k.Name)
		}
		out[k.Deletion.Field] = k.Deletion.Value(true)
	}

	for field, value := range k.Defaults {
		if !out.Has(field) {
			out[field] = value
		}
	}

	if v, ok := models.Int64(out[models.FieldVersion]); ok && v >= 1 {
		out.SetVersion(v)
	} else {
		out.SetVersion(1)
	}

	if k.Deletion.Tracked() {
		out[k.Deletion.Field] = k.Deletion.Value(truthy(out[k.Deletion.Field]))
	}

	if t, ok := out.Time(models.FieldCreatedAt); ok {
		out.SetTime(models.FieldCreatedAt, t)
	} else {
		out.SetTime(models.FieldCreatedAt, clientTime)
	}
	if t, ok := out.UpdatedAt(); ok {
		out.SetTime(models.FieldUpdatedAt, t)
	} else {
		out.SetTime(models.FieldUpdatedAt, clientTime)
	}

	for _, field := range k.Required {
		if missing(out[field]) {
			return nil, syncerr.Validation("%s: missing required field: %s", k.Name, field)
		}
	}
	return out, nil
}

func missing(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes":
			return true
		}
		return false
	default:
		n, ok := models.Int64(v)
		return ok && n != 0
	}
}
