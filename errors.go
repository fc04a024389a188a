// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tinyproto

import "errors"

var (
	// ErrClosed names the closed-endpoint condition. No function in this
	// package returns it: calls made after Close reach the embedded
	// fd.Endpoint, which reports fd.ErrFailed.
	ErrClosed = errors.New("tinyproto: closed")

	// ErrInvalidArgument reports a nil transport passed to Run. New returns
	// fd.New's errors unchanged.
	ErrInvalidArgument = errors.New("tinyproto: invalid argument")
)
