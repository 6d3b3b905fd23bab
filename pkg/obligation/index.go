// Package obligation provides the immutable in-memory index of governance
// obligations.
package obligation

import (
	"fmt"
	"strings"

	pkgerrors "github.com/jdziat/govbench/pkg/errors"
	"github.com/jdziat/govbench/pkg/types"
)

// Index maps obligation ids to obligations. It is safe for concurrent reads
// and never changes after NewIndex returns.
type Index struct {
	byID  map[string]types.Obligation
	order []string
}

// NewIndex validates obligations and builds an index over them. An empty
// list, an entry without an id or without any statement, and repeated ids
// are all rejected with a *pkgerrors.ValidationError.
func NewIndex(obligations []types.Obligation) (*Index, error) {
	if len(obligations) == 0 {
		return nil, pkgerrors.NewValidationErrorWithCause("obligations", "list is empty", pkgerrors.ErrEmptyObligations)
	}

	idx := &Index{
		byID:  make(map[string]types.Obligation, len(obligations)),
		order: make([]string, 0, len(obligations)),
	}
	for i, ob := range obligations {
		field := fmt.Sprintf("obligations[%d]", i)
		id := strings.TrimSpace(ob.ObligationID)
		if id == "" {
			return nil, pkgerrors.NewValidationError(field+".obligation_id", "is required")
		}
		if len(ob.Must) == 0 && len(ob.MustNot) == 0 {
			return nil, pkgerrors.NewValidationError(field, fmt.Sprintf("obligation %q has neither must nor must_not", id))
		}
		if _, dup := idx.byID[id]; dup {
			return nil, pkgerrors.NewValidationError(field+".obligation_id", fmt.Sprintf("duplicate obligation %q", id))
		}
		ob.ObligationID = id
		idx.byID[id] = ob
		idx.order = append(idx.order, id)
	}
	return idx, nil
}

// Lookup returns the obligation with the given id. ok is false when it is
// absent.
func (idx *Index) Lookup(id string) (ob types.Obligation, ok bool) {
	ob, ok = idx.byID[id]
	return ob, ok
}

// IDs returns obligation ids in load order.
func (idx *Index) IDs() []string {
	out := make([]string, len(idx.order))
	copy(out, idx.order)
	return out
}

// All returns the obligations in load order.
func (idx *Index) All() []types.Obligation {
	out := make([]types.Obligation, len(idx.order))
	for i, id := range idx.order {
		out[i] = idx.byID[id]
	}
	return out
}

// Len returns the number of obligations.
func (idx *Index) Len() int {
	return len(idx.order)
}
