// Package config loads JSON5 configuration files into structs.
package config

import (
	"encoding/json"
	"io"
	"reflect"
	"time"

	"github.com/flynn/json5"
	"go.skia.org/rebaseline/go/skerr"
	"go.skia.org/rebaseline/go/util"
)

// Duration allows us to supply a duration as a human readable string, e.g.
// "5m" or "30s".
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return skerr.Wrapf(err, "duration must be a string")
	}
	var err error
	d.Duration, err = time.ParseDuration(s)
	return skerr.Wrapf(err, "parsing duration %q", s)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// LoadFromJSON5 decodes each file in paths, in order, into dst. Later files
// override fields set by earlier ones. dst must be a pointer to a struct with
// "json" struct tags. An error is returned if any non-struct, non-bool field
// is its zero value *unless* it is tagged with `optional:"true"`.
func LoadFromJSON5(dst interface{}, paths ...string) error {
	// Elem() dereferences a pointer or panics.
	rType := reflect.TypeOf(dst).Elem()
	if rType.Kind() != reflect.Struct {
		return skerr.Fmt("Input must be a pointer to a struct, got %T", dst)
	}
	for _, p := range paths {
		err := util.WithReadFile(p, func(r io.Reader) error {
			return json5.NewDecoder(r).Decode(dst)
		})
		if err != nil {
			return skerr.Wrapf(err, "reading config at %s", p)
		}
	}
	return checkRequired(reflect.Indirect(reflect.ValueOf(dst)))
}

// checkRequired returns an error if any non-struct, non-bool fields of the given value have a zero
// value *unless* they have an optional tag with value true.
func checkRequired(rValue reflect.Value) error {
	rType := rValue.Type()
	for i := 0; i < rValue.NumField(); i++ {
		field := rType.Field(i)
		if field.Tag.Get("optional") == "true" {
			continue
		}
		if field.Type.Kind() == reflect.Struct {
			if err := checkRequired(rValue.Field(i)); err != nil {
				return err
			}
			continue
		}
		if field.Type.Kind() == reflect.Bool {
			// For ease of use, booleans aren't compared against their zero value, since that would
			// effectively make them required to be true always.
			continue
		}
		if field.Tag.Get("json") == "" {
			// don't validate struct values w/o json tags (e.g. Duration.Duration).
			continue
		}
		if rValue.Field(i).IsZero() {
			return skerr.Fmt("Required %s to be non-zero", field.Name)
		}
	}
	return nil
}
