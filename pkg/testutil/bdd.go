package testutil

import "testing"

// Given runs fn as a subtest named after the precondition.
func Given(t *testing.T, precondition string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("given "+precondition, fn)
}
