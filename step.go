// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp

import (
	"code.hybscloud.com/iox"
)

// Step flushes the outbound backlog and delivers at most one inbound
// message. It reports whether anything happened.
//
// Step is non-blocking: when the transport has nothing ready it returns
// (false, nil) after the flush, and may be retried after the peer makes
// progress. A *ProtocolError from Deliver is returned with progress true;
// the session keeps running. Any other transport error ends the session.
func (s *Session) Step() (bool, error) {
	if s.state == Closed {
		return false, s.closeErr
	}
	progress := s.flush()
	if s.state == Closed {
		return true, s.closeErr
	}
	m, err := s.transport.Recv()
	if err != nil {
		if iox.IsWouldBlock(err) {
			return progress, nil
		}
		s.disconnect(err)
		return true, s.closeErr
	}
	return true, s.Deliver(m)
}
