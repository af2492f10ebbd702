package emissions_test

import (
	"testing"

	"go.uber.org/goleak"
)

// Engine functions are synchronous; none may leave a goroutine behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
