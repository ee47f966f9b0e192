// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp

import "code.hybscloud.com/atomix"

// Serial identifies a session or pipe in logs and metrics.
// Serials are process-wide and strictly increasing.
type Serial = uint32

var serials atomix.Uint32

func nextSerial() Serial {
	return serials.Add(1)
}
