// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp

// Drain steps every session in turn until none of them makes progress.
// Interleaves all sessions on the calling goroutine; it does not spawn
// goroutines or wait. Sessions that close are skipped.
//
// Drain is meant for sessions connected by [Pipe] on one goroutine, where
// quiescence means every message in flight has been handled.
func Drain(sessions ...*Session) {
	for {
		progress := false
		for _, s := range sessions {
			if s.State() == Closed {
				continue
			}
			ok, _ := s.Step()
			progress = progress || ok
		}
		if !progress {
			return
		}
	}
}
