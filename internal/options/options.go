// Package options implements the functional option pattern shared by readers,
// writers and stores.
package options

import "fmt"

// Option configures a target of type T.
type Option[T any] interface {
	apply(T) error
}

// Func is a functional option backed by a function.
type Func[T any] struct {
	name      string
	applyFunc func(T) error
}

func (f *Func[T]) apply(target T) error {
	if err := f.applyFunc(target); err != nil {
		if f.name != "" {
			return fmt.Errorf("%s: %w", f.name, err)
		}

		return err
	}

	return nil
}

// New creates an option from a function that may fail.
func New[T any](fn func(T) error) *Func[T] {
	return &Func[T]{applyFunc: fn}
}

// Named creates an option whose errors are prefixed with name, so a failing
// option can be identified in configuration errors.
func Named[T any](name string, fn func(T) error) *Func[T] {
	return &Func[T]{name: name, applyFunc: fn}
}

// NoError creates an option from a function that cannot fail.
func NoError[T any](fn func(T)) *Func[T] {
	return &Func[T]{
		applyFunc: func(target T) error {
			fn(target)
			return nil
		},
	}
}

// Apply applies opts to target in order and stops at the first error.
func Apply[T any](target T, opts ...Option[T]) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(target); err != nil {
			return err
		}
	}

	return nil
}

// ApplyAndValidate applies opts to target and then runs validate on the result.
//
// Parameters:
//   - target: the configuration being built
//   - validate: consistency check across options, may be nil
//   - opts: options applied in order
//
// Returns:
//   - error: the first option error, or the validation error
func ApplyAndValidate[T any](target T, validate func(T) error, opts ...Option[T]) error {
	if err := Apply(target, opts...); err != nil {
		return err
	}

	if validate == nil {
		return nil
	}

	return validate(target)
}
