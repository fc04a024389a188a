// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fd

import (
	"log/slog"
	"time"

	"code.hybscloud.com/tinyproto/crc"
	"code.hybscloud.com/tinyproto/hal"
)

// Mode selects the link discipline: peer-to-peer (ABM) or primary-polls-
// secondaries (NRM).
type Mode uint8

const (
	ABM Mode = iota
	NRM
)

// Config holds an Endpoint's configuration, built from defaultConfig by
// applying Option values.
type Config struct {
	Mode         Mode
	Addr         byte
	PeersCount   int
	MTU          int
	WindowFrames int
	CRC          crc.Kind
	SendTimeout  time.Duration
	RetryTimeout time.Duration
	KATimeout    time.Duration
	Retries      int

	HAL    hal.HAL
	Logger *slog.Logger

	OnRead         func(addr byte, payload []byte)
	OnSend         func(addr byte, payload []byte)
	OnConnectEvent func(addr byte, connected bool)
}

// Option mutates a Config during New.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Mode:         ABM,
		Addr:         1,
		PeersCount:   1,
		MTU:          256,
		WindowFrames: 4,
		CRC:          crc.C16,
		SendTimeout:  time.Second,
		KATimeout:    5 * time.Second,
		Retries:      3,
	}
}

func WithMode(m Mode) Option { return func(c *Config) { c.Mode = m } }

// WithAddr sets the local station address (1..62), or AddrPrimary for the
// NRM primary.
func WithAddr(addr byte) Option { return func(c *Config) { c.Addr = addr } }

// WithPeersCount bounds the peer table size: 1 for a secondary, 1..63 for a
// primary.
func WithPeersCount(n int) Option { return func(c *Config) { c.PeersCount = n } }

func WithMTU(n int) Option { return func(c *Config) { c.MTU = n } }

// WithWindowFrames sets the sliding window size, 2..7 (1 is rejected by New:
// no RR/REJ disambiguation is possible with a single-frame window).
func WithWindowFrames(n int) Option { return func(c *Config) { c.WindowFrames = n } }

func WithCRC(kind crc.Kind) Option { return func(c *Config) { c.CRC = kind } }

func WithSendTimeout(d time.Duration) Option { return func(c *Config) { c.SendTimeout = d } }

// WithRetryTimeout overrides the default of SendTimeout/(Retries+1).
func WithRetryTimeout(d time.Duration) Option { return func(c *Config) { c.RetryTimeout = d } }

func WithKATimeout(d time.Duration) Option { return func(c *Config) { c.KATimeout = d } }

func WithRetries(n int) Option { return func(c *Config) { c.Retries = n } }

func WithHAL(h hal.HAL) Option { return func(c *Config) { c.HAL = h } }

func WithLogger(l *slog.Logger) Option { return func(c *Config) { c.Logger = l } }

func WithOnRead(fn func(addr byte, payload []byte)) Option {
	return func(c *Config) { c.OnRead = fn }
}

func WithOnSend(fn func(addr byte, payload []byte)) Option {
	return func(c *Config) { c.OnSend = fn }
}

func WithOnConnectEvent(fn func(addr byte, connected bool)) Option {
	return func(c *Config) { c.OnConnectEvent = fn }
}
