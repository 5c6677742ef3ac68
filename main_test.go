// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ffutop/nvram/internal/integrity"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
banks:
  - name: "boot"
    cell_count: 4
    value_type: "uint32"
    medium:
      type: "file"
      path: %q
  - name: "flags"
    cell_count: 2
    value_type: "bool"
    medium:
      type: "bolt"
      path: %q
log:
  level: "error"
`, filepath.Join(dir, "boot.bin"), filepath.Join(dir, "nvram.db"))
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	cfg := writeConfig(t)

	if _, err := run(t, "--config", cfg, "clear"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := run(t, "-c", cfg, "set", "0", "10", "1", "20", "2", "0x1E"); err != nil {
		t.Fatalf("set: %v", err)
	}

	out, err := run(t, "-c", cfg, "dump")
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if want := "0\t10\n1\t20\n2\t30\n3\t0\n"; out != want {
		t.Errorf("dump output %q, want %q", out, want)
	}

	out, err = run(t, "-c", cfg, "get", "2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != "2\t30\n" {
		t.Errorf("get output %q", out)
	}

	if _, err := run(t, "-c", cfg, "verify"); !errors.Is(err, integrity.ErrChecksumMismatch) {
		t.Fatalf("verify before seal: got %v, want ErrChecksumMismatch", err)
	}
	if _, err := run(t, "-c", cfg, "seal"); err != nil {
		t.Fatalf("seal: %v", err)
	}
	out, err = run(t, "-c", cfg, "verify")
	if err != nil {
		t.Fatalf("verify after seal: %v", err)
	}
	if out != "boot: ok\n" {
		t.Errorf("verify output %q", out)
	}
}

func TestCommands_SelectBank(t *testing.T) {
	cfg := writeConfig(t)

	if _, err := run(t, "-c", cfg, "-b", "flags", "set", "1", "true"); err != nil {
		t.Fatalf("set: %v", err)
	}
	out, err := run(t, "-c", cfg, "--bank", "flags", "dump")
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if want := "0\tfalse\n1\ttrue\n"; out != want {
		t.Errorf("dump output %q, want %q", out, want)
	}

	if _, err := run(t, "-c", cfg, "-b", "missing", "dump"); err == nil {
		t.Error("expected error for unknown bank")
	}
}

func TestCommands_Args(t *testing.T) {
	cfg := writeConfig(t)

	tests := [][]string{
		{"set", "0"},
		{"get"},
		{"get", "x"},
		{"dump", "extra"},
		{"get", "9"},
	}
	for _, args := range tests {
		if _, err := run(t, append([]string{"-c", cfg}, args...)...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}
