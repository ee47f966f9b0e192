// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package captp_test

import "testing"

// skipRace skips the tests that hand messages between goroutines through
// a Pipe end. Pipe publishes a message to its reader by index ordering,
// which the race detector does not model. Conn tests use net.Pipe and
// are not skipped.
func skipRace(tb testing.TB) {
	tb.Helper()
	tb.Skip("skip: Pipe handoff between goroutines is not visible to the race detector")
}
