// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package app opens configured banks for the command line.
package app

import (
	"errors"
	"fmt"

	"github.com/ffutop/nvram/internal/config"
	"github.com/ffutop/nvram/internal/integrity"
	"github.com/ffutop/nvram/internal/slave"
	"github.com/ffutop/nvram/medium"
	"github.com/ffutop/nvram/nvram"
	"github.com/ffutop/nvram/region"
	"github.com/ffutop/nvram/transport"
)

// ErrNotSealable is returned by Seal and Verify on banks whose value type
// cannot hold a checksum.
var ErrNotSealable = errors.New("value type cannot hold a seal")

// Session is an open bank with its values rendered as text.
type Session interface {
	Name() string
	ValueType() string
	CellCount() int
	State() nvram.State

	// Dump returns a snapshot of every cell.
	Dump() ([]string, error)
	// Clear resets every cell to the cleared value.
	Clear() error
	// Get and Set go through the live cells. The first call takes the
	// bank's live access.
	Get(index int) (string, error)
	Set(index int, value string) error
	// Seal writes the checksum of all but the last cell to the last cell.
	Seal() (uint16, error)
	// Verify checks the seal against a dump.
	Verify() error
	// Handler takes the bank's live access and returns a handler serving
	// it as Modbus registers.
	Handler() (transport.RequestHandler, error)

	Close() error
}

// Open creates the medium for cfg and opens the bank on it.
func Open(cfg config.BankConfig) (Session, error) {
	m, err := NewMedium(cfg)
	if err != nil {
		return nil, err
	}
	return OpenOn(m, cfg)
}

// OpenOn opens the bank described by cfg on m.
func OpenOn(m medium.Medium, cfg config.BankConfig) (Session, error) {
	switch cfg.ValueType {
	case "bool":
		return wrap(open[bool](m, cfg))
	case "int8":
		return wrap(open[int8](m, cfg))
	case "uint8":
		return wrap(open[uint8](m, cfg))
	case "float32":
		return wrap(open[float32](m, cfg))
	case "float64":
		return wrap(open[float64](m, cfg))
	case "int16":
		return wrap(openSealable[int16](m, cfg))
	case "int32":
		return wrap(openSealable[int32](m, cfg))
	case "int64":
		return wrap(openSealable[int64](m, cfg))
	case "uint16":
		return wrap(openSealable[uint16](m, cfg))
	case "uint32":
		return wrap(openSealable[uint32](m, cfg))
	case "uint64":
		return wrap(openSealable[uint64](m, cfg))
	default:
		return nil, fmt.Errorf("unknown value type %q", cfg.ValueType)
	}
}

func wrap[T nvram.Word](s *session[T], err error) (Session, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

type session[T nvram.Word] struct {
	valueType string
	bank      *region.Bank[T]
	cells     []*region.Cell[T]

	seal   func(cells []*region.Cell[T]) (uint16, error)
	verify func(bank *region.Bank[T]) error
}

func open[T nvram.Word](m medium.Medium, cfg config.BankConfig) (*session[T], error) {
	order, err := byteOrder(cfg.ByteOrder)
	if err != nil {
		return nil, err
	}
	var cleared T
	if cfg.ClearedValue != "" {
		cleared, err = ParseWord[T](cfg.ClearedValue)
		if err != nil {
			return nil, fmt.Errorf("invalid cleared_value %q: %w", cfg.ClearedValue, err)
		}
	}

	bank, err := region.Open(m, region.Config[T]{
		Name:         cfg.Name,
		CellCount:    cfg.CellCount,
		ClearedValue: cleared,
		ByteOrder:    order,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bank %q: %w", cfg.Name, err)
	}

	return &session[T]{
		valueType: cfg.ValueType,
		bank:      bank,
		seal: func([]*region.Cell[T]) (uint16, error) {
			return 0, fmt.Errorf("%w: %s", ErrNotSealable, cfg.ValueType)
		},
		verify: func(*region.Bank[T]) error {
			return fmt.Errorf("%w: %s", ErrNotSealable, cfg.ValueType)
		},
	}, nil
}

func openSealable[T integrity.Integer](m medium.Medium, cfg config.BankConfig) (*session[T], error) {
	s, err := open[T](m, cfg)
	if err != nil {
		return nil, err
	}
	s.seal = integrity.Seal[*region.Cell[T], T]
	s.verify = func(bank *region.Bank[T]) error {
		return integrity.Verify[*region.Cell[T], T](bank)
	}
	return s, nil
}

func (s *session[T]) Name() string       { return s.bank.Name() }
func (s *session[T]) ValueType() string  { return s.valueType }
func (s *session[T]) CellCount() int     { return s.bank.CellCount() }
func (s *session[T]) State() nvram.State { return s.bank.State() }

func (s *session[T]) Dump() ([]string, error) {
	values, err := s.bank.DumpStorage()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = FormatWord(v)
	}
	return out, nil
}

func (s *session[T]) Clear() error {
	return s.bank.ClearStorage()
}

func (s *session[T]) live() ([]*region.Cell[T], error) {
	if s.cells == nil {
		cells, err := s.bank.Storage()
		if err != nil {
			return nil, err
		}
		s.cells = cells
	}
	return s.cells, nil
}

func (s *session[T]) cell(index int) (*region.Cell[T], error) {
	cells, err := s.live()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(cells) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", nvram.ErrIndexOutOfRange, index, len(cells))
	}
	return cells[index], nil
}

func (s *session[T]) Get(index int) (string, error) {
	c, err := s.cell(index)
	if err != nil {
		return "", err
	}
	v, err := c.Read()
	if err != nil {
		return "", err
	}
	return FormatWord(v), nil
}

func (s *session[T]) Set(index int, value string) error {
	v, err := ParseWord[T](value)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", s.valueType, value, err)
	}
	c, err := s.cell(index)
	if err != nil {
		return err
	}
	return c.Write(v)
}

func (s *session[T]) Seal() (uint16, error) {
	cells, err := s.live()
	if err != nil {
		return 0, err
	}
	return s.seal(cells)
}

func (s *session[T]) Verify() error {
	return s.verify(s.bank)
}

func (s *session[T]) Handler() (transport.RequestHandler, error) {
	sl, err := slave.New[*region.Cell[T], T](s.bank)
	if err != nil {
		return nil, err
	}
	return sl.Handle, nil
}

func (s *session[T]) Close() error {
	return s.bank.Close()
}
