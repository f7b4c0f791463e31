package app

import (
	"os"
	"sync"
)

const testModeEnv = "OVR_TEST_MODE"

var inTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether the binaries should skip runtime side effects.
// The flag is read once per process.
func InTestMode() bool {
	return inTestMode()
}
