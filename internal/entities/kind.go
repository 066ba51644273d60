// Package entities holds one declarative descriptor per syncable entity kind.
// The descriptors carry everything that varies between kinds (required
// fields, defaults, how deletion is represented) so the push and pull
// pipelines stay generic.
package entities

import (
	"fmt"
	"time"

	"github.com/prudhvinik1/tenantsync/internal/models"
	"github.com/prudhvinik1/tenantsync/internal/utils"
)

// DeletionRepr is how a kind stores its soft-delete indicator.
type DeletionRepr string

const (
	DeletionNone    DeletionRepr = "none"
	DeletionNumeric DeletionRepr = "numeric"
	DeletionBoolean DeletionRepr = "boolean"
)

type DeletionFlag struct {
	Field string
	Repr  DeletionRepr
}

// Tracked reports whether the kind has a deletion indicator at all.
func (d DeletionFlag) Tracked() bool {
	return d.Repr == DeletionNumeric || d.Repr == DeletionBoolean
}

// Value returns the stored representation for deleted/not deleted.
func (d DeletionFlag) Value(deleted bool) any {
	switch d.Repr {
	case DeletionNumeric:
		if deleted {
			return int64(1)
		}
		return int64(0)
	case DeletionBoolean:
		return deleted
	}
	return nil
}

// Kind describes one entity type exchanged through sync.
type Kind struct {
	Name     string
	Required []string
	Deletion DeletionFlag
	Defaults map[string]any
}

// Validate checks the descriptor before it is admitted to a registry. Field
// names end up inside SQL JSON paths, so they must be plain identifiers.
func (k Kind) Validate() error {
	if !utils.ValidIdentifier(k.Name) {
		return fmt.Errorf("invalid entity kind name %q", k.Name)
	}
	switch k.Deletion.Repr {
	case DeletionNone, "":
	case DeletionNumeric, DeletionBoolean:
		if !utils.ValidIdentifier(k.Deletion.Field) {
			return fmt.Errorf("kind %s: invalid deletion field %q", k.Name, k.Deletion.Field)
		}
	default:
		return fmt.Errorf("kind %s: unknown deletion representation %q", k.Name, k.Deletion.Repr)
	}
	for _, f := range k.Required {
		if !utils.ValidIdentifier(f) {
			return fmt.Errorf("kind %s: invalid required field %q", k.Name, f)
		}
	}
	return nil
}

// IsDeleted reads the kind's deletion indicator from rec.
func (k Kind) IsDeleted(rec models.Record) bool {
	if !k.Deletion.Tracked() {
		return false
	}
	return truthy(rec[k.Deletion.Field])
}

// Filter is a storage-neutral query predicate. Each store translates it into
// its own dialect.
type Filter struct {
	// UpdatedAfter keeps records whose updatedAt is strictly later.
	UpdatedAfter *time.Time
	// ExcludeDeleted drops records whose indicator is set. Nil means the kind
	// has no indicator and nothing is excluded.
	ExcludeDeleted *DeletionFlag
	// UnsyncedOnly keeps records whose sync_status is absent or not "synced".
	UnsyncedOnly bool
}

// ChangedSince builds the pull filter for this kind.
func (k Kind) ChangedSince(checkpoint time.Time) Filter {
	t := checkpoint
	return Filter{UpdatedAfter: &t, ExcludeDeleted: k.deletionPredicate()}
}

// Pending builds the pull-pending filter for this kind.
func (k Kind) Pending() Filter {
	return Filter{UnsyncedOnly: true, ExcludeDeleted: k.deletionPredicate()}
}

func (k Kind) deletionPredicate() *DeletionFlag {
	if !k.Deletion.Tracked() {
		return nil
	}
	d := k.Deletion
	return &d
}
