package sqlconf

import (
	"errors"
	"fmt"

	cuerrors "github.com/cloudutil/cloudutil/internal/errors"
)

// Op is the outcome of one reconciliation decision.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpSkip   Op = "skip"
	OpError  Op = "error"
)

// Resource is the kind of object a change applies to.
type Resource string

const (
	ResourceDatabase  Resource = "database"
	ResourceExtension Resource = "extension"
	ResourceUser      Resource = "user"
	ResourcePrivilege Resource = "privilege"
)

// Change is one record in the run's change log. Records are created only by
// the reconciler and are immutable once appended.
type Change struct {
	Op       Op                     `json:"op"`
	Resource Resource               `json:"resource"`
	Name     string                 `json:"name"`
	Detail   map[string]interface{} `json:"detail,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// Reporter accumulates the ordered change log for one run. It is not safe
// for concurrent use; a run is strictly sequential.
type Reporter struct {
	changes []Change
}

// NewReporter creates an empty change log.
func NewReporter() *Reporter {
	return &Reporter{}
}

// Record appends a reconciliation action.
func (r *Reporter) Record(op Op, resource Resource, name string, detail map[string]interface{}) {
	r.changes = append(r.changes, Change{Op: op, Resource: resource, Name: name, Detail: detail})
}

// Fail appends a resource-scoped failure entry. The cause is wrapped in a
// ResourceError carrying the resource kind and name, unless it already is one.
func (r *Reporter) Fail(resource Resource, name string, err error) {
	var re cuerrors.ResourceError
	if !errors.As(err, &re) {
		err = cuerrors.ResourceError{Resource: string(resource), Name: name, Err: err}
	}
	r.changes = append(r.changes, Change{Op: OpError, Resource: resource, Name: name, Error: err.Error()})
}

// Changes returns a copy of the ordered change log.
func (r *Reporter) Changes() []Change {
	out := make([]Change, len(r.changes))
	copy(out, r.changes)
	return out
}

// Summary aggregates the change log by operation kind.
type Summary struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Summary computes the aggregate counts for the run so far.
func (r *Reporter) Summary() Summary {
	s := Summary{Total: len(r.changes)}
	for _, c := range r.changes {
		switch c.Op {
		case OpCreate:
			s.Created++
		case OpUpdate:
			s.Updated++
		case OpSkip:
			s.Skipped++
		case OpError:
			s.Failed++
		}
	}
	return s
}

// Converged reports whether the run made no changes and hit no failures.
func (s Summary) Converged() bool {
	return s.Created == 0 && s.Updated == 0 && s.Failed == 0
}

// String renders the operator-facing one-line outcome. Partial failure is
// never reported as success.
func (s Summary) String() string {
	if s.Failed > 0 {
		return fmt.Sprintf("partially failed: %d resource(s) could not be reconciled (%d created, %d updated, %d skipped)",
			s.Failed, s.Created, s.Updated, s.Skipped)
	}
	if s.Converged() {
		return "fully converged, zero changes"
	}
	return fmt.Sprintf("converged with %d change(s) (%d created, %d updated, %d skipped)",
		s.Created+s.Updated, s.Created, s.Updated, s.Skipped)
}
