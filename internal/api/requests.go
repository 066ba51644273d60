package api

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prudhvinik1/tenantsync/internal/models"
	"github.com/prudhvinik1/tenantsync/internal/syncerr"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tidwall/gjson"
)

const maxBodyBytes = 10 << 20

//go:embed schemas/*.json
var schemaFS embed.FS

// validator holds the compiled request schemas.
type validator struct {
	push        *jsonschema.Schema
	pull        *jsonschema.Schema
	pullPending *jsonschema.Schema
}

func newValidator() (*validator, error) {
	c := jsonschema.NewCompiler()
	compile := func(name string) (*jsonschema.Schema, error) {
		data, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse schema %s: %w", name, err)
		}
		if err := c.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("failed to add schema %s: %w", name, err)
		}
		return c.Compile(name)
	}

	push, err := compile("push.json")
	if err != nil {
		return nil, err
	}
	pull, err := compile("pull.json")
	if err != nil {
		return nil, err
	}
	pullPending, err := compile("pull_pending.json")
	if err != nil {
		return nil, err
	}
	return &validator{push: push, pull: pull, pullPending: pullPending}, nil
}

// readBody reads a JSON body and checks it against schema.
func readBody(r *http.Request, schema *jsonschema.Schema) (gjson.Result, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return gjson.Result{}, syncerr.Validation("failed to read request body")
	}
	if len(raw) > maxBodyBytes {
		return gjson.Result{}, syncerr.Validation("request body too large")
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, syncerr.Validation("request body is not valid JSON")
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return gjson.Result{}, syncerr.Validation("request body is not valid JSON")
	}
	if err := schema.Validate(inst); err != nil {
		return gjson.Result{}, syncerr.Validation("invalid request: %s", schemaMessage(err))
	}
	return gjson.ParseBytes(raw), nil
}

// schemaMessage flattens a validation error to a single line.
func schemaMessage(err error) string {
	lines := strings.Split(strings.TrimSpace(err.Error()), "\n")
	parts := make([]string, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		// The first line only names the schema
		if i == 0 && len(lines) > 1 {
			continue
		}
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, "; ")
}

// parsePush turns either request form into an ordered change list. Batch
// bodies keep the key order of "changes" and the order inside each array.
func parsePush(body gjson.Result) ([]models.SyncChange, error) {
	if batch := body.Get("changes"); batch.Exists() {
		var changes []models.SyncChange
		batch.ForEach(func(entityType, list gjson.Result) bool {
			list.ForEach(func(_, entity gjson.Result) bool {
				changes = append(changes, models.SyncChange{
					EntityType: entityType.String(),
					Data:       toRecord(entity),
				})
				return true
			})
			return true
		})
		return changes, nil
	}

	change := models.SyncChange{
		EntityType: body.Get("table").String(),
		Operation:  models.Operation(body.Get("operation").String()),
		Data:       toRecord(body.Get("data")),
	}
	ts, ok := models.ParseTime(body.Get("timestamp").String())
	if !ok {
		return nil, syncerr.Validation("timestamp must be an ISO-8601 date")
	}
	change.Timestamp = &ts
	return []models.SyncChange{change}, nil
}

type pullRequest struct {
	checkpoint  time.Time
	entityTypes []string
}

func parsePull(body gjson.Result) (pullRequest, error) {
	var req pullRequest
	stamp := body.Get("lastSyncTimestamp")
	if stamp.Exists() {
		req.entityTypes = stringList(body.Get("entityTypes"))
	} else {
		stamp = body.Get("lastSync")
		req.entityTypes = []string{body.Get("table").String()}
	}

	checkpoint, ok := models.ParseTime(stamp.String())
	if !ok {
		return req, syncerr.Validation("checkpoint must be an ISO-8601 date")
	}
	req.checkpoint = checkpoint
	return req, nil
}

func parsePullPending(body gjson.Result) []string {
	if types := body.Get("entityTypes"); types.Exists() {
		return stringList(types)
	}
	return []string{body.Get("table").String()}
}

func toRecord(v gjson.Result) models.Record {
	m, ok := v.Value().(map[string]any)
	if !ok {
		return models.Record{}
	}
	return models.Record(m)
}

func stringList(v gjson.Result) []string {
	arr := v.Array()
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		out = append(out, item.String())
	}
	return out
}
