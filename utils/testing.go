package utils

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// AssertEquals verifies that the expected generic object T is equal to result T.
// If expected differs from result in any way, the test will fail immediately.
func AssertEquals[T comparable](t *testing.T, expected T, result T) {
	t.Helper()
	if expected != result {
		t.Logf("%s is failed. Got '%v', expected '%v'", t.Name(), result, expected)
		t.FailNow()
	}
}

// AssertEqualsMsg is like AssertEquals, but it also prints a custom message when the test fails.
func AssertEqualsMsg[T comparable](t *testing.T, expected T, result T, msg string) {
	t.Helper()
	if expected != result {
		t.Logf("%s is failed; %s - Got '%v', expected '%v'", t.Name(), msg, result, expected)
		t.FailNow()
	}
}

// AssertSliceEquals is like AssertEquals but works for slices.
func AssertSliceEquals[T comparable](t *testing.T, expected []T, result []T) {
	t.Helper()
	if equal := slices.Equal(expected, result); !equal {
		t.Logf("%s is failed Got '%v', expected '%v'", t.Name(), result, expected)
		t.FailNow()
	}
}

// AssertMapEquals is like AssertEquals but works for maps.
func AssertMapEquals[K comparable, V comparable](t *testing.T, expected map[K]V, result map[K]V) {
	t.Helper()
	if equal := maps.Equal(expected, result); !equal {
		t.Logf("%s is failed. Got '%v', expected '%v'", t.Name(), result, expected)
		t.FailNow()
	}
}

// AssertNil checks that result is nil. Useful for checking that there are no errors.
func AssertNil(t *testing.T, result interface{}) {
	t.Helper()
	if nil != result {
		t.Logf("%s is failed. Got '%v', expected nil", t.Name(), result)
		t.FailNow()
	}
}

// AssertNilMsg is like AssertNil, but it also prints a custom message when the test fails.
func AssertNilMsg(t *testing.T, result interface{}, msg string) {
	t.Helper()
	if nil != result {
		t.Logf("%s is failed; %s - Got '%v', expected nil", t.Name(), msg, result)
		t.FailNow()
	}
}

// AssertNonNil checks that result is non-nil.
func AssertNonNil(t *testing.T, result interface{}) {
	t.Helper()
	if nil == result {
		t.Logf("%s is failed. Got '%v', expected non-nil", t.Name(), result)
		t.FailNow()
	}
}

// AssertErrorIs checks that err matches target according to errors.Is.
func AssertErrorIs(t *testing.T, err error, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Logf("%s is failed. Got error '%v', expected '%v'", t.Name(), err, target)
		t.FailNow()
	}
}

// AssertTrue verifies that given boolean is true, otherwise fails the test immediately
func AssertTrue(t *testing.T, isTrue bool) {
	t.Helper()
	if !isTrue {
		t.Logf("%s is failed. Got false", t.Name())
		t.FailNow()
	}
}

// AssertTrueMsg verifies that given boolean is true, otherwise fails the test immediately and prints a custom message
func AssertTrueMsg(t *testing.T, isTrue bool, msg string) {
	t.Helper()
	if !isTrue {
		t.Logf("%s is false - %s", t.Name(), msg)
		t.FailNow()
	}
}

// AssertFalse verifies that given boolean is false, otherwise fails the test immediately
func AssertFalse(t *testing.T, isTrue bool) {
	t.Helper()
	if isTrue {
		t.Logf("%s is failed. Got true", t.Name())
		t.FailNow()
	}
}

// AssertEventually polls cond every 5ms until it holds or timeout elapses.
func AssertEventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Logf("%s is failed; condition not met within %v - %s", t.Name(), timeout, msg)
	t.FailNow()
}
