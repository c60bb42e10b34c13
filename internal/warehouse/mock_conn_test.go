package warehouse

import (
	"context"
	"reflect"
	"strings"
	"sync"
)

type fakeConn struct {
	mu      sync.Mutex
	execs   []string
	batches []*fakeBatch

	execErr func(query string) error
	rowFn   func(query string) *fakeRow
	rowsFn  func(query string) *fakeRows
}

func (c *fakeConn) Exec(_ context.Context, query string, _ ...any) error {
	c.mu.Lock()
	c.execs = append(c.execs, query)
	c.mu.Unlock()
	if c.execErr != nil {
		return c.execErr(query)
	}
	return nil
}

func (c *fakeConn) Query(_ context.Context, query string, _ ...any) (Rows, error) {
	if c.rowsFn != nil {
		return c.rowsFn(query), nil
	}
	return &fakeRows{}, nil
}

func (c *fakeConn) QueryRow(_ context.Context, query string, _ ...any) Row {
	if c.rowFn != nil {
		return c.rowFn(query)
	}
	return &fakeRow{}
}

func (c *fakeConn) PrepareBatch(_ context.Context, query string) (Batch, error) {
	b := &fakeBatch{query: query}
	c.mu.Lock()
	c.batches = append(c.batches, b)
	c.mu.Unlock()
	return b, nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) execsMatching(fragment string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, q := range c.execs {
		if strings.Contains(q, fragment) {
			out = append(out, q)
		}
	}
	return out
}

func (c *fakeConn) batchFor(fragment string) *fakeBatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.batches {
		if strings.Contains(b.query, fragment) {
			return b
		}
	}
	return nil
}

type fakeBatch struct {
	query    string
	appended [][]any
	sent     bool
}

func (b *fakeBatch) Append(v ...any) error {
	b.appended = append(b.appended, v)
	return nil
}

func (b *fakeBatch) Send() error {
	b.sent = true
	return nil
}

type fakeRow struct {
	values []any
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assignValues(r.values, dest)
}

type fakeRows struct {
	rows [][]any
	idx  int
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	return assignValues(r.rows[r.idx-1], dest)
}

func (r *fakeRows) Close() error { return nil }
func (r *fakeRows) Err() error   { return nil }

// assignValues copies each source value into the matching destination
// pointer, converting numeric widths as the driver would. nil sources
// leave the destination at its zero value.
func assignValues(values []any, dest []any) error {
	for i, d := range dest {
		if i >= len(values) || values[i] == nil {
			continue
		}
		dv := reflect.ValueOf(d).Elem()
		sv := reflect.ValueOf(values[i])
		if sv.Type().ConvertibleTo(dv.Type()) {
			dv.Set(sv.Convert(dv.Type()))
		}
	}
	return nil
}
