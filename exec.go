// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp

import (
	"context"

	"code.hybscloud.com/iox"
)

// Await steps sessions on the calling goroutine until p settles, then
// returns its result. When no session can make progress it waits with
// adaptive backoff (iox.Backoff), so peers driven by other goroutines
// can catch up. Returns ctx.Err() if ctx ends first.
func Await(ctx context.Context, p *Promise, sessions ...*Session) (any, error) {
	var bo iox.Backoff
	for !p.Settled() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress := false
		for _, s := range sessions {
			ok, _ := s.Step()
			progress = progress || ok
		}
		if !progress {
			bo.Wait()
		} else {
			bo.Reset()
		}
	}
	return p.Result()
}
