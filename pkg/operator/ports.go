package operator

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/wehubfusion/Daedalus/pkg/record"
)

var (
	// ErrPortNotFound is returned when a declared input port has no method.
	ErrPortNotFound = errors.New("input port method not found")
	// ErrInvalidPortHandler is returned when a port method has the wrong signature.
	ErrInvalidPortHandler = errors.New("input port method has invalid signature")
)

// InputPortDeclarer is implemented by operator instances with several input
// ports. InputPorts returns the handler method names, one per port, in port
// order. Each method must have the signature of Func:
//
//	func (o *T) Name(ctx context.Context, args operator.Args) (record.Value, error)
type InputPortDeclarer interface {
	InputPorts() []string
}

// BindInputPorts returns the handler of every port declared by instance,
// bound to instance, in declared order.
func BindInputPorts(instance InputPortDeclarer) ([]Func, error) {
	if instance == nil {
		return nil, fmt.Errorf("bind input ports: nil instance: %w", ErrPortNotFound)
	}

	names := instance.InputPorts()
	rv := reflect.ValueOf(instance)
	handlers := make([]Func, 0, len(names))

	for port, name := range names {
		m := rv.MethodByName(name)
		if !m.IsValid() {
			return nil, fmt.Errorf("port %d: %s.%s: %w", port, rv.Type(), name, ErrPortNotFound)
		}
		fn, ok := m.Interface().(func(context.Context, Args) (record.Value, error))
		if !ok {
			return nil, fmt.Errorf("port %d: %s.%s has type %s: %w", port, rv.Type(), name, m.Type(), ErrInvalidPortHandler)
		}
		handlers = append(handlers, Func(fn))
	}
	return handlers, nil
}

// AttachOutputAttributes stores a copy of attrs on c as its output-attribute
// metadata. The list is not validated.
func AttachOutputAttributes(c *Callable, attrs []string) {
	if attrs == nil {
		c.outputAttrs = nil
		return
	}
	c.outputAttrs = make([]string, len(attrs))
	copy(c.outputAttrs, attrs)
}
