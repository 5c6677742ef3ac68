// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/grid-x/serial"

	"github.com/ffutop/nvram/internal/config"
)

// serialIdleTimeout closes a master's port after a quiet minute.
const serialIdleTimeout = 60 * time.Second

// serialConfig maps a configured serial line to grid-x/serial settings.
func serialConfig(cfg config.SerialConfig) serial.Config {
	return serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout, // Read timeout
	}
}

// serialPort is a lazily opened serial line shared by one master.
type serialPort struct {
	serial.Config

	// IdleTimeout closes the port after this long without a request.
	IdleTimeout time.Duration
	// RequestPause is the minimum gap between the end of one exchange and
	// the start of the next. Slow NVRAM devices need it after a write.
	RequestPause time.Duration

	mu           sync.Mutex
	port         io.ReadWriteCloser
	lastActivity time.Time
	closeTimer   *time.Timer
}

func (p *serialPort) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.connect(ctx)
}

// connect opens the port unless it is open. Caller must hold the mutex.
func (p *serialPort) connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.port != nil {
		return nil
	}
	port, err := serial.Open(&p.Config)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", p.Address, err)
	}
	p.port = port
	return nil
}

// settle waits out RequestPause since the last exchange. Caller must hold
// the mutex.
func (p *serialPort) settle(ctx context.Context) error {
	if p.RequestPause <= 0 || p.lastActivity.IsZero() {
		return nil
	}
	wait := p.RequestPause - time.Since(p.lastActivity)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *serialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.close()
}

// close closes the port if it is open. Caller must hold the mutex.
func (p *serialPort) close() (err error) {
	if p.port != nil {
		err = p.port.Close()
		p.port = nil
	}
	return
}

func (p *serialPort) startCloseTimer() {
	if p.IdleTimeout <= 0 {
		return
	}
	if p.closeTimer == nil {
		p.closeTimer = time.AfterFunc(p.IdleTimeout, p.closeIdle)
	} else {
		p.closeTimer.Reset(p.IdleTimeout)
	}
}

func (p *serialPort) closeIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.IdleTimeout <= 0 || p.port == nil {
		return
	}
	if idle := time.Since(p.lastActivity); idle >= p.IdleTimeout {
		slog.Debug("Closing idle serial port", "device", p.Address, "idle", idle)
		p.close()
	}
}
