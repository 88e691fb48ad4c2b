// Package testutils holds assertion helpers shaped like testify's assert and
// require, plus a mock of the download service for end-to-end tests.
package testutils

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// checker carries the failure function: Errorf for Assert, Fatalf for Require.
type checker struct {
	t    testing.TB
	fail func(format string, args ...any)
}

func (c checker) report(ok bool, what string, format string, args []any) bool {
	c.t.Helper()
	if ok {
		return true
	}
	var message string
	if format != "" {
		message = fmt.Sprintf(format, args...)
	}
	c.fail("%s. %s", what, message)
	return false
}

func (c checker) isTrue(cond bool, format string, args []any) {
	c.t.Helper()
	c.report(cond, "Expected condition to be true but was false", format, args)
}

func (c checker) isFalse(cond bool, format string, args []any) {
	c.t.Helper()
	c.report(!cond, "Expected condition to be false but was true", format, args)
}

func (c checker) equal(expected, actual any, format string, args []any) {
	c.t.Helper()
	c.report(reflect.DeepEqual(expected, actual), fmt.Sprintf("Expected %#v but got %#v", expected, actual), format, args)
}

func (c checker) contains(s, substr string, format string, args []any) {
	c.t.Helper()
	c.report(strings.Contains(s, substr), fmt.Sprintf("Expected %q to contain %q", s, substr), format, args)
}

func (c checker) length(object any, expected int, format string, args []any) {
	c.t.Helper()
	rv := reflect.ValueOf(object)
	switch rv.Kind() {
	case reflect.Array, reflect.Slice, reflect.Map, reflect.Chan, reflect.String:
	default:
		c.fail("Len requires array, slice, map, channel, or string but got %T", object)
		return
	}
	c.report(rv.Len() == expected, fmt.Sprintf("Expected length %d but got %d", expected, rv.Len()), format, args)
}

func (c checker) noError(err error, format string, args []any) {
	c.t.Helper()
	c.report(err == nil, fmt.Sprintf("Expected no error but got: %v", err), format, args)
}

func (c checker) isError(err error, format string, args []any) {
	c.t.Helper()
	c.report(err != nil, "Expected error but got nil", format, args)
}

// Assert records failures and lets the test continue.
type Assert struct{ c checker }

// NewAssert returns an Assert bound to t.
func NewAssert(t testing.TB) *Assert {
	return &Assert{c: checker{t: t, fail: t.Errorf}}
}

func (a *Assert) True(cond bool, format string, args ...any) {
	a.c.t.Helper()
	a.c.isTrue(cond, format, args)
}

func (a *Assert) False(cond bool, format string, args ...any) {
	a.c.t.Helper()
	a.c.isFalse(cond, format, args)
}

// Equal compares with reflect.DeepEqual.
func (a *Assert) Equal(expected, actual any, format string, args ...any) {
	a.c.t.Helper()
	a.c.equal(expected, actual, format, args)
}

func (a *Assert) Contains(s, substr string, format string, args ...any) {
	a.c.t.Helper()
	a.c.contains(s, substr, format, args)
}

// Len supports arrays, slices, maps, channels, and strings.
func (a *Assert) Len(object any, expected int, format string, args ...any) {
	a.c.t.Helper()
	a.c.length(object, expected, format, args)
}

func (a *Assert) NoError(err error, format string, args ...any) {
	a.c.t.Helper()
	a.c.noError(err, format, args)
}

func (a *Assert) Error(err error, format string, args ...any) {
	a.c.t.Helper()
	a.c.isError(err, format, args)
}

// Require stops the test at the first failure.
type Require struct{ c checker }

// NewRequire returns a Require bound to t.
func NewRequire(t testing.TB) *Require {
	return &Require{c: checker{t: t, fail: t.Fatalf}}
}

func (r *Require) True(cond bool, format string, args ...any) {
	r.c.t.Helper()
	r.c.isTrue(cond, format, args)
}

func (r *Require) False(cond bool, format string, args ...any) {
	r.c.t.Helper()
	r.c.isFalse(cond, format, args)
}

func (r *Require) Equal(expected, actual any, format string, args ...any) {
	r.c.t.Helper()
	r.c.equal(expected, actual, format, args)
}

func (r *Require) Len(object any, expected int, format string, args ...any) {
	r.c.t.Helper()
	r.c.length(object, expected, format, args)
}

func (r *Require) NoError(err error, format string, args ...any) {
	r.c.t.Helper()
	r.c.noError(err, format, args)
}

func (r *Require) Error(err error, format string, args ...any) {
	r.c.t.Helper()
	r.c.isError(err, format, args)
}
