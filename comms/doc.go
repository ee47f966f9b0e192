// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package comms translates references between a kernel's slot numbering
// and the wire numbering of each remote peer.
//
// A [Translator] keeps one clist per peer, a table of [Entry] rows that
// pair a kernel slot with the wire slot each side writes for it. Promises
// imported from a peer are paired with a separate resolver slot; only the
// resolver can settle the promise, and only once. A [Bridge] routes the
// peer events "deliver" and "notify" through the translator into a
// [Kernel].
package comms
