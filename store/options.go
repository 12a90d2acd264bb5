package store

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
)

// Options configures a Store. Zero values of the optional fields are
// replaced by defaults in New.
type Options struct {
	// Required
	EntityCapacity    int // max published documents
	ExistenceCapacity int // max presence/absence flags; raised to EntityCapacity if smaller

	Shards      int         // per bounded map; 0 => auto (GOMAXPROCS based)
	Logger      *zap.Logger // nil => zap.NewNop()
	Diagnostics Diagnostics // nil => NopDiagnostics
}

// DefaultOptions returns the stock capacities.
func DefaultOptions() Options {
	return Options{
		EntityCapacity:    1_000,
		ExistenceCapacity: 10_000,
	}
}

// Validate checks the capacities. The returned error is a *ConfigError
// naming the first offending field.
func (o Options) Validate() error {
	err := validation.ValidateStruct(&o,
		validation.Field(&o.EntityCapacity, validation.Required, validation.Min(1)),
		validation.Field(&o.ExistenceCapacity, validation.Required, validation.Min(1)),
		validation.Field(&o.Shards, validation.Min(0)),
	)
	if err == nil {
		return nil
	}

	var fields validation.Errors
	if !errors.As(err, &fields) {
		return err
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return &ConfigError{Field: names[0], Message: fields[names[0]].Error()}
}

// normalize fills defaults and applies the existence >= entity rule.
// It reports the requested existence capacity when it had to be raised.
func (o Options) normalize() (Options, int, bool) {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Diagnostics == nil {
		o.Diagnostics = NopDiagnostics{}
	}
	if o.ExistenceCapacity < o.EntityCapacity {
		requested := o.ExistenceCapacity
		o.ExistenceCapacity = o.EntityCapacity
		return o, requested, true
	}
	return o, 0, false
}
