package topology

import "encoding/json"

// Deferred is a string value that may not be known at the time it is wired
// into a resource. Some construction steps consume identifiers produced by
// later steps (the default function's split-origin map, for example); those
// values are carried as thunks and evaluated exactly once when the finished
// graph is resolved. The whole pipeline is single-threaded, so no locking
// discipline is needed: by the time Resolve runs, every upstream value a
// thunk observes is fully populated.
type Deferred struct {
	value    string
	fn       func() (string, error)
	resolved bool
}

// Literal creates an already-resolved value.
func Literal(value string) *Deferred {
	return &Deferred{value: value, resolved: true}
}

// Defer creates a value computed by fn at resolution time.
func Defer(fn func() (string, error)) *Deferred {
	return &Deferred{fn: fn}
}

// Resolve evaluates the value. Thunks run at most once; subsequent calls
// return the memoized result.
func (d *Deferred) Resolve() (string, error) {
	if d.resolved {
		return d.value, nil
	}
	if d.fn == nil {
		return "", NewBuildError(ErrCodeUnresolved, "deferred value has no thunk", nil)
	}

	value, err := d.fn()
	if err != nil {
		return "", err
	}

	d.value = value
	d.resolved = true
	d.fn = nil
	return d.value, nil
}

// Resolved reports whether the value has been evaluated.
func (d *Deferred) Resolved() bool {
	return d.resolved
}

// MarshalJSON serializes the resolved value. Resolving the graph before
// serialization is the caller's responsibility; marshaling an unresolved
// value fails rather than silently emitting an empty string.
func (d *Deferred) MarshalJSON() ([]byte, error) {
	if !d.resolved {
		return nil, NewBuildError(ErrCodeUnresolved, "deferred value serialized before resolution", nil)
	}
	return json.Marshal(d.value)
}

// EnvMap is the environment variable set of a function resource. Values may
// be deferred.
type EnvMap map[string]*Deferred

// ResolveEnv evaluates every value in the map and returns the concrete
// environment.
func (m EnvMap) ResolveEnv() (map[string]string, error) {
	out := make(map[string]string, len(m))
	for key, value := range m {
		resolved, err := value.Resolve()
		if err != nil {
			return nil, err
		}
		out[key] = resolved
	}
	return out, nil
}
