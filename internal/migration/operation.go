package migration

import (
	"strings"

	"github.com/mediaoffload/offloader/internal/catalog"
	offerr "github.com/mediaoffload/offloader/internal/errors"
)

// Operation names one of the batch reconciliation passes.
type Operation string

const (
	Migrate         Operation = "migrate"
	Revert          Operation = "revert"
	ReuploadMissing Operation = "reupload_missing"
	DeleteLocal     Operation = "delete_local"
)

// Operations lists every operation in a fixed order.
func Operations() []Operation {
	return []Operation{Migrate, Revert, ReuploadMissing, DeleteLocal}
}

var aliases = map[string]Operation{
	"migrate":          Migrate,
	"revert":           Revert,
	"reupload_missing": ReuploadMissing,
	"reupload-missing": ReuploadMissing,
	"reupload":         ReuploadMissing,
	"delete_local":     DeleteLocal,
	"delete-local":     DeleteLocal,
}

// ParseOperation resolves an operation name or alias.
func ParseOperation(s string) (Operation, error) {
	if op, ok := aliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return op, nil
	}
	return "", offerr.ErrInvalidOperation.WithMessage("unknown operation %q", s)
}

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	switch o {
	case Migrate, Revert, ReuploadMissing, DeleteLocal:
		return true
	}
	return false
}

// filter is the selection predicate of the operation.
func (o Operation) filter() catalog.Filter {
	switch o {
	case Migrate:
		return catalog.Filter{State: catalog.StateLocal}
	case ReuploadMissing:
		return catalog.Filter{State: catalog.StateLocal, RequirePrimary: true}
	default:
		return catalog.Filter{State: catalog.StateOffloaded}
	}
}

// shrinking reports whether a successful item leaves the selection, so the
// underlying query skips only the items that failed.
func (o Operation) shrinking() bool {
	return o != DeleteLocal
}

// needsStore reports whether the operation cannot start without a fully
// configured object store.
func (o Operation) needsStore() bool {
	return o == Migrate || o == ReuploadMissing
}
