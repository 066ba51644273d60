// Package conflict resolves a server-held record against a client-submitted
// one using a whole-record strategy.
package conflict

import (
	"time"

	"github.com/prudhvinik1/tenantsync/internal/models"
	"github.com/prudhvinik1/tenantsync/internal/syncerr"
)

type Strategy string

const (
	ServerWins    Strategy = "server-wins"
	ClientWins    Strategy = "client-wins"
	LastWriteWins Strategy = "last-write-wins"
	Merge         Strategy = "merge"
)

// ParseStrategy validates a configured strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case ServerWins, ClientWins, LastWriteWins, Merge:
		return st, nil
	}
	return "", syncerr.ConflictResolution(s)
}

// Resolve returns the record to persist. Neither input is modified.
//
// The merged record always keeps the server id. Strategies that adopt client
// content bump the version past the server's so version never decreases.
// last-write-wins keeps the server record on ties and when the client
// timestamp is missing.
func Resolve(server, client models.Record, strategy Strategy, now time.Time) (models.Record, error) {
	var merged models.Record

	switch strategy {
	case ServerWins:
		merged = server.Clone()
	case ClientWins:
		merged = client.Clone()
		merged.SetVersion(server.Version() + 1)
	case LastWriteWins:
		if clientIsNewer(server, client) {
			merged = client.Clone()
			merged.SetVersion(server.Version() + 1)
		} else {
			merged = server.Clone()
		}
	case Merge:
		merged = server.Clone()
		for k, v := range client {
			merged[k] = v
		}
		merged.SetVersion(server.Version() + 1)
	default:
		return nil, syncerr.ConflictResolution(string(strategy))
	}

	merged.SetID(server.ID())
	if server.Has(models.FieldCreatedAt) {
		merged[models.FieldCreatedAt] = server[models.FieldCreatedAt]
	}
	merged.SetTime(models.FieldUpdatedAt, now)
	return merged, nil
}

func clientIsNewer(server, client models.Record) bool {
	ct, ok := client.UpdatedAt()
	if !ok {
		return false
	}
	st, ok := server.UpdatedAt()
	if !ok {
		return true
	}
	return ct.After(st)
}

// Detect reports whether the client edited a stale copy of the record.
func Detect(server, client models.Record) bool {
	if !client.Has(models.FieldVersion) {
		return false
	}
	return client.Version() < server.Version()
}
