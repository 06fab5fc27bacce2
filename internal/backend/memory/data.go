// Package memory provides in-process implementations of the backend
// capabilities. They back the memory mode of the CLI and the service tests.
// They favor clarity over performance.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"studygenie/internal/backend"
)

// Procedure is a backend-side routine. It runs with the store lock held, so
// everything it does through tx is atomic with respect to other calls.
type Procedure func(tx *Tx, args map[string]any) error

// Data is an in-memory DataBackend: named collections of rows, an object store
// and registered procedures.
//
// Error Contract:
// - Execute returns rejections for invalid queries and unique-key violations
// - Upload returns sentinel.ErrConflict when the path is taken
// - Call returns sentinel.ErrNotFound for unknown procedures
type Data struct {
	mu          sync.Mutex
	clock       func() time.Time
	collections map[string][]backend.Row
	nextID      map[string]int64
	objects     map[string]backend.Object
	procedures  map[string]Procedure
}

var _ backend.DataBackend = (*Data)(nil)

// DataOption configures a Data instance.
type DataOption func(*Data)

// WithDataClock sets the clock used for created_at defaults.
func WithDataClock(clock func() time.Time) DataOption {
	return func(d *Data) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithProcedure registers or replaces a procedure.
func WithProcedure(name string, fn Procedure) DataOption {
	return func(d *Data) {
		d.procedures[name] = fn
	}
}

// NewData constructs an empty store with the default procedures registered.
func NewData(opts ...DataOption) *Data {
	d := &Data{
		clock:       time.Now,
		collections: make(map[string][]backend.Row),
		nextID:      make(map[string]int64),
		objects:     make(map[string]backend.Object),
		procedures: map[string]Procedure{
			ProcUpdateUserProgress: updateUserProgress,
			ProcCheckAchievements:  func(*Tx, map[string]any) error { return nil },
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

func (d *Data) Execute(_ context.Context, q backend.Query) ([]backend.Row, error) {
	if err := q.Validate(); err != nil {
		return nil, backend.Reject(err.Error(), err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	tx := &Tx{d: d}
	switch q.Operation {
	case backend.OpInsert:
		row, err := tx.Insert(q.Collection, q.Values)
		if err != nil {
			return nil, err
		}
		return []backend.Row{row}, nil
	case backend.OpUpdate:
		return tx.Update(q.Collection, q.Filters, q.Values), nil
	default:
		return tx.Select(q), nil
	}
}

func (d *Data) Upload(_ context.Context, obj backend.Object) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := obj.Bucket + "/" + obj.Path
	if _, exists := d.objects[key]; exists {
		return backend.Conflict("The resource already exists", nil)
	}
	stored := obj
	stored.Data = append([]byte(nil), obj.Data...)
	d.objects[key] = stored
	return nil
}

func (d *Data) Call(_ context.Context, procedure string, args map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn, ok := d.procedures[procedure]
	if !ok {
		return backend.NotFound(fmt.Sprintf("function %s does not exist", procedure))
	}
	return fn(&Tx{d: d}, args)
}

// Object returns a stored object.
func (d *Data) Object(bucket, path string) (backend.Object, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	obj, ok := d.objects[bucket+"/"+path]
	return obj, ok
}

// ObjectPaths lists the stored paths of bucket, sorted.
func (d *Data) ObjectPaths(bucket string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var paths []string
	for _, obj := range d.objects {
		if obj.Bucket == bucket {
			paths = append(paths, obj.Path)
		}
	}
	sort.Strings(paths)
	return paths
}

// Rows returns a copy of every row in collection, in insertion order.
func (d *Data) Rows(collection string) []backend.Row {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]backend.Row, 0, len(d.collections[collection]))
	for _, r := range d.collections[collection] {
		out = append(out, r.Clone())
	}
	return out
}

// Seed inserts rows directly, bypassing validation. Used for fixtures such as
// achievement definitions and analytics rows written by backend jobs.
func (d *Data) Seed(collection string, rows ...backend.Row) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	tx := &Tx{d: d}
	for _, r := range rows {
		if _, err := tx.Insert(collection, r); err != nil {
			return err
		}
	}
	return nil
}

// Tx exposes the collections to procedures while the store lock is held.
type Tx struct {
	d *Data
}

// Now returns the store clock.
func (tx *Tx) Now() time.Time {
	return tx.d.clock()
}

// Insert stores values. Rows without an "id" get the next integer id; an
// explicit id must be unique. created_at defaults to the store clock.
func (tx *Tx) Insert(collection string, values backend.Row) (backend.Row, error) {
	row := values.Clone()
	if id, ok := row["id"]; ok && id != nil {
		for _, existing := range tx.d.collections[collection] {
			if c, ok := backend.CompareValues(existing["id"], id); ok && c == 0 {
				return nil, backend.Reject(
					fmt.Sprintf("duplicate key value violates unique constraint \"%s_pkey\"", collection), nil)
			}
		}
	} else {
		tx.d.nextID[collection]++
		row["id"] = tx.d.nextID[collection]
	}
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = tx.d.clock()
	}
	tx.d.collections[collection] = append(tx.d.collections[collection], row)
	return row.Clone(), nil
}

// Update applies values to every row matching filters and returns the updated rows.
func (tx *Tx) Update(collection string, filters []backend.Filter, values backend.Row) []backend.Row {
	var out []backend.Row
	for _, row := range tx.d.collections[collection] {
		if !matches(row, filters) {
			continue
		}
		for k, v := range values {
			row[k] = v
		}
		out = append(out, row.Clone())
	}
	return out
}

// Select returns matching rows with embeds resolved, ordered as requested.
func (tx *Tx) Select(q backend.Query) []backend.Row {
	var out []backend.Row
	for _, row := range tx.d.collections[q.Collection] {
		if !matches(row, q.Filters) {
			continue
		}
		r := row.Clone()
		for _, e := range q.Embeds {
			r[e.Collection] = tx.embed(row, e)
		}
		out = append(out, r)
	}
	if len(q.Orders) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.Orders {
				c, ok := backend.CompareValues(out[i][o.Column], out[j][o.Column])
				if !ok || c == 0 {
					continue
				}
				if o.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	return out
}

func (tx *Tx) embed(row backend.Row, e backend.Embed) backend.Row {
	key := row[e.LocalKey]
	for _, candidate := range tx.d.collections[e.Collection] {
		if c, ok := backend.CompareValues(candidate[e.ForeignKey], key); !ok || c != 0 {
			continue
		}
		if len(e.Columns) == 0 {
			return candidate.Clone()
		}
		projected := make(backend.Row, len(e.Columns))
		for _, col := range e.Columns {
			projected[col] = candidate[col]
		}
		return projected
	}
	return nil
}

func matches(row backend.Row, filters []backend.Filter) bool {
	for _, f := range filters {
		c, ok := backend.CompareValues(row[f.Column], f.Value)
		if !ok {
			return false
		}
		switch f.Comparator {
		case backend.CmpEq:
			if c != 0 {
				return false
			}
		case backend.CmpGte:
			if c < 0 {
				return false
			}
		}
	}
	return true
}
