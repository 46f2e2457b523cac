package task

// Query is the read-only status path over a Store.
type Query struct {
	store Store
}

// NewQuery creates a Query.
func NewQuery(store Store) *Query {
	return &Query{store: store}
}

// Get returns the task with id or ErrNotFound.
func (q *Query) Get(id string) (*Task, error) {
	return q.store.Get(id)
}

// GetForCaller is Get restricted to callerID's tasks. Tasks owned by other
// callers are reported as ErrNotFound so their IDs are not confirmed.
func (q *Query) GetForCaller(callerID, id string) (*Task, error) {
	t, err := q.store.Get(id)
	if err != nil {
		return nil, err
	}
	if t.CallerID != callerID {
		return nil, ErrNotFound
	}
	return t, nil
}

// List returns callerID's tasks, newest first.
func (q *Query) List(callerID string) []*Task {
	return q.store.ListByCaller(callerID)
}
