package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/prudhvinik1/tenantsync/internal/models"
	"github.com/prudhvinik1/tenantsync/internal/utils"
)

// SchemaPrefix prefixes every tenant schema or database file name.
const SchemaPrefix = "tenant_"

// recordRow is a record split into the indexed columns and the JSON document
// holding every other field.
type recordRow struct {
	ID         string
	Version    int64
	SyncStatus *string
	Data       []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

var columnFields = []string{
	models.FieldID,
	models.FieldVersion,
	models.FieldSyncStatus,
	models.FieldCreatedAt,
	models.FieldUpdatedAt,
}

func toRow(rec models.Record, assignID bool) (*recordRow, error) {
	row := &recordRow{ID: rec.ID(), Version: rec.Version()}

	if assignID {
		if _, ok := utils.ParseID(row.ID); !ok {
			row.ID = utils.NewID()
		}
	}
	if row.Version < 1 {
		row.Version = 1
	}
	if s, ok := rec[models.FieldSyncStatus].(string); ok && s != "" {
		row.SyncStatus = &s
	}

	// Both stores keep microsecond precision.
	now := time.Now().UTC().Truncate(time.Microsecond)
	row.CreatedAt = now
	if t, ok := rec.Time(models.FieldCreatedAt); ok {
		row.CreatedAt = t.UTC().Truncate(time.Microsecond)
	}
	row.UpdatedAt = now
	if t, ok := rec.UpdatedAt(); ok {
		row.UpdatedAt = t.UTC().Truncate(time.Microsecond)
	}

	doc := rec.Clone()
	for _, f := range columnFields {
		delete(doc, f)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	row.Data = data
	return row, nil
}

func (row *recordRow) toRecord() (models.Record, error) {
	rec := models.Record{}
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", row.ID, err)
		}
	}
	rec.SetID(row.ID)
	rec.SetVersion(row.Version)
	if row.SyncStatus != nil {
		rec[models.FieldSyncStatus] = *row.SyncStatus
	}
	rec.SetTime(models.FieldCreatedAt, row.CreatedAt)
	rec.SetTime(models.FieldUpdatedAt, row.UpdatedAt)
	return rec, nil
}
