// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ffutop/nvram/internal/app"
	"github.com/ffutop/nvram/internal/config"
)

// cli holds the state shared by every command.
type cli struct {
	configFile string
	bankName   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "nvram",
		Short:         "Inspect and serve NVRAM banks.",
		Long:          "Inspect, clear, seal and serve the NVRAM banks named in the configuration file.",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(c.configFile)
			if err != nil {
				return err
			}
			setupLogger(cfg.Log)
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "Path to config file")
	root.PersistentFlags().StringVarP(&c.bankName, "bank", "b", "", "Bank to operate on (default: serve.bank or the first bank)")

	root.AddCommand(
		c.dumpCmd(),
		c.clearCmd(),
		c.getCmd(),
		c.setCmd(),
		c.sealCmd(),
		c.verifyCmd(),
		c.serveCmd(),
	)
	return root
}

// bank resolves the bank the command operates on.
func (c *cli) bank() (config.BankConfig, error) {
	name := c.bankName
	if name == "" {
		name = c.cfg.Serve.Bank
	}
	if name == "" {
		if len(c.cfg.Banks) == 0 {
			return config.BankConfig{}, fmt.Errorf("no banks configured")
		}
		return c.cfg.Banks[0], nil
	}
	return c.cfg.Bank(name)
}

// withSession opens the selected bank, runs fn and closes the bank.
func (c *cli) withSession(fn func(app.Session) error) (err error) {
	bc, err := c.bank()
	if err != nil {
		return err
	}
	sess, err := app.Open(bc)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close bank %q: %w", bc.Name, cerr)
		}
	}()
	return fn(sess)
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid cell index %q: %w", s, err)
	}
	return i, nil
}

func (c *cli) dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print a snapshot of every cell.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(func(s app.Session) error {
				values, err := s.Dump()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for i, v := range values {
					fmt.Fprintf(out, "%d\t%s\n", i, v)
				}
				return nil
			})
		},
	}
}

func (c *cli) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Reset every cell to the cleared value.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(func(s app.Session) error {
				if err := s.Clear(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %d cells of %s\n", s.CellCount(), s.Name())
				return nil
			})
		},
	}
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get INDEX...",
		Short: "Read cells through live access.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(func(s app.Session) error {
				for _, arg := range args {
					i, err := parseIndex(arg)
					if err != nil {
						return err
					}
					v, err := s.Get(i)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i, v)
				}
				return nil
			})
		},
	}
}

func (c *cli) setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set INDEX VALUE [INDEX VALUE]...",
		Short: "Write cells through live access.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%2 != 0 {
				return fmt.Errorf("expected INDEX VALUE pairs, got %d args", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(func(s app.Session) error {
				for j := 0; j < len(args); j += 2 {
					i, err := parseIndex(args[j])
					if err != nil {
						return err
					}
					if err := s.Set(i, args[j+1]); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func (c *cli) sealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seal",
		Short: "Store the checksum of the bank in its last cell.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(func(s app.Session) error {
				sum, err := s.Seal()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sealed %s: 0x%04X\n", s.Name(), sum)
				return nil
			})
		},
	}
}

func (c *cli) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the checksum stored in the last cell.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(func(s app.Session) error {
				if err := s.Verify(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", s.Name())
				return nil
			})
		},
	}
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the bank as Modbus registers until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			us, err := app.NewUpstream(c.cfg.Serve)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			slog.Info("Starting NVRAM server...")
			err = c.withSession(func(s app.Session) error {
				return app.Serve(ctx, s, us, c.cfg.Serve.SlaveIDs)
			})
			slog.Info("Goodbye.")
			return err
		},
	}
}
