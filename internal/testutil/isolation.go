// Package testutil holds helpers shared by the package tests.
package testutil

import (
	"os"
	"testing"
)

// Isolate snapshots the given environment variables and registers a
// t.Cleanup that restores them, unsetting variables that were absent.
// Cleanups run LIFO, so nested calls restore correctly.
func Isolate(t testing.TB, keys ...string) {
	t.Helper()

	snapshot := make(map[string]*string, len(keys))
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			snapshot[k] = &v
		} else {
			snapshot[k] = nil
		}
	}

	t.Cleanup(func() {
		for k, v := range snapshot {
			if v == nil {
				_ = os.Unsetenv(k)
			} else {
				_ = os.Setenv(k, *v)
			}
		}
	})
}
