package entities

// Built-in kinds synced by the client applications.
var (
	EndUser = Kind{
		Name:     "end_user",
		Required: []string{"email"},
		Deletion: DeletionFlag{Field: "is_deleted", Repr: DeletionNumeric},
		Defaults: map[string]any{"active": int64(1)},
	}

	Interactions = Kind{
		Name:     "interactions",
		Required: []string{"type", "title"},
		Deletion: DeletionFlag{Repr: DeletionNone},
		Defaults: map[string]any{"status": "pending"},
	}

	Customers = Kind{
		Name:     "customers",
		Required: []string{"name", "email"},
		Deletion: DeletionFlag{Field: "isDeleted", Repr: DeletionBoolean},
		Defaults: map[string]any{"status": "active"},
	}

	Contacts = Kind{
		Name:     "contacts",
		Required: []string{"firstName", "lastName", "email"},
		Deletion: DeletionFlag{Field: "isDeleted", Repr: DeletionBoolean},
		Defaults: map[string]any{"isActive": true},
	}
)

// Builtin returns the kinds registered at startup.
func Builtin() []Kind {
	return []Kind{EndUser, Interactions, Customers, Contacts}
}
