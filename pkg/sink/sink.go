// Package sink receives the positional records a runner submits.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/wehubfusion/Daedalus/pkg/record"
)

// Sink accepts positional records. Emit must not retain rec after it
// returns; buffer-backed values in rec are released by the caller.
type Sink interface {
	Emit(ctx context.Context, rec record.Positional) error
	Close(ctx context.Context) error
}

// Envelope is the wire form of one record
type Envelope struct {
	Attributes []string `json:"attributes"`
	Values     []any    `json:"values"`
}

// bytesView is implemented by buffer-backed values such as *memory.Buffer
type bytesView interface {
	Bytes() []byte
}

// detach copies rec, replacing buffer-backed values with copies of their bytes
// so the result does not outlive the buffers.
func detach(rec record.Positional) record.Positional {
	out := make(record.Positional, len(rec))
	for i, v := range rec {
		if b, ok := v.(bytesView); ok {
			if rv := reflect.ValueOf(b); rv.Kind() == reflect.Pointer && rv.IsNil() {
				out[i] = nil
				continue
			}
			out[i] = append([]byte(nil), b.Bytes()...)
			continue
		}
		out[i] = v
	}
	return out
}

// Encode marshals rec as an Envelope. Buffer-backed values are copied out as
// bytes.
func Encode(attrs []string, rec record.Positional) ([]byte, error) {
	data, err := json.Marshal(Envelope{Attributes: attrs, Values: []any(detach(rec))})
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

// Collector keeps every emitted record in memory
type Collector struct {
	mu      sync.Mutex
	records []record.Positional
	closed  bool
}

// NewCollector returns an empty Collector
func NewCollector() *Collector {
	return &Collector{}
}

// Emit stores a copy of rec. Buffer-backed values are stored as copies of
// their bytes.
func (c *Collector) Emit(_ context.Context, rec record.Positional) error {
	rec = detach(rec)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return nil
}

// Close marks the collector closed
func (c *Collector) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Records returns the records emitted so far
func (c *Collector) Records() []record.Positional {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]record.Positional, len(c.records))
	copy(out, c.records)
	return out
}

// Closed reports whether Close was called
func (c *Collector) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fanout emits every record to several sinks
type fanout []Sink

// Fanout returns a Sink that emits to each of sinks in order. Emit stops at
// the first failing sink; Close closes all of them.
func Fanout(sinks ...Sink) Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return fanout(sinks)
}

func (f fanout) Emit(ctx context.Context, rec record.Positional) error {
	for _, s := range f {
		if err := s.Emit(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (f fanout) Close(ctx context.Context) error {
	var errs []error
	for _, s := range f {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
