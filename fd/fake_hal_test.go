// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fd_test

import (
	"sync"
	"time"

	"code.hybscloud.com/tinyproto/hal"
)

// fakeHAL wraps hal.Standard with a caller-controlled clock so retry and
// keep-alive timers can be advanced deterministically instead of sleeping.
type fakeHAL struct {
	*hal.Standard
	mu  sync.Mutex
	now time.Time
}

func newFakeHAL(start time.Time) *fakeHAL {
	return &fakeHAL{Standard: hal.NewStandard(), now: start}
}

func (f *fakeHAL) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeHAL) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

var _ hal.HAL = (*fakeHAL)(nil)
