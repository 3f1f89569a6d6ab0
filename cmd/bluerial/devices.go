package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/bluerial/internal/device"
	"github.com/nerrad567/bluerial/internal/infrastructure/config"
	"github.com/nerrad567/bluerial/internal/infrastructure/database"
	"github.com/nerrad567/bluerial/internal/presence"
	"github.com/nerrad567/bluerial/migrations"
)

// deviceFlags are the editable known-device fields.
type deviceFlags struct {
	stableID string
	name     string
	pairable bool
	paired   bool
}

func newDevicesCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Manage the known-device registry",
		Long: `Known devices map a radio address to a stable id, a fallback name and
a pairing state. Changes are written to the database; a running service
picks them up on its next start.`,
	}
	cmd.AddCommand(
		newDevicesListCmd(root),
		newDevicesAddCmd(root),
		newDevicesUpdateCmd(root),
		newDevicesRemoveCmd(root),
	)
	return cmd
}

func newDevicesListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRegistry(cmd.Context(), root.resolveConfigPath(), func(r *device.Registry) error {
				return printDevices(cmd.OutOrStdout(), r.List())
			})
		},
	}
}

func newDevicesAddCmd(root *rootOptions) *cobra.Command {
	var f deviceFlags
	cmd := &cobra.Command{
		Use:   "add <address>",
		Short: "Register a known device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := presence.ParseAddress(args[0])
			if err != nil {
				return err
			}
			d := &device.KnownDevice{
				Address:  addr,
				StableID: f.stableID,
				Name:     f.name,
				Connection: presence.ConnectionState{
					Pairable: f.pairable,
					Paired:   f.paired,
				},
			}
			return withRegistry(cmd.Context(), root.resolveConfigPath(), func(r *device.Registry) error {
				if err := r.Create(cmd.Context(), d); err != nil {
					return fmt.Errorf("adding %s: %w", presence.FormatAddress(addr), err)
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "added %s as %s\n", presence.FormatAddress(addr), d.StableID)
				return err
			})
		},
	}
	addDeviceFlags(cmd, &f)
	_ = cmd.MarkFlagRequired("stable-id")
	return cmd
}

func newDevicesUpdateCmd(root *rootOptions) *cobra.Command {
	var f deviceFlags
	cmd := &cobra.Command{
		Use:   "update <address>",
		Short: "Change fields of a known device",
		Long:  "Only the flags given on the command line are changed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := presence.ParseAddress(args[0])
			if err != nil {
				return err
			}
			return withRegistry(cmd.Context(), root.resolveConfigPath(), func(r *device.Registry) error {
				d, err := r.Get(cmd.Context(), addr)
				if err != nil {
					return fmt.Errorf("updating %s: %w", presence.FormatAddress(addr), err)
				}
				flags := cmd.Flags()
				if flags.Changed("stable-id") {
					d.StableID = f.stableID
				}
				if flags.Changed("name") {
					d.Name = f.name
				}
				if flags.Changed("pairable") {
					d.Connection.Pairable = f.pairable
				}
				if flags.Changed("paired") {
					d.Connection.Paired = f.paired
				}
				if err := r.Update(cmd.Context(), &d); err != nil {
					return fmt.Errorf("updating %s: %w", presence.FormatAddress(addr), err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", presence.FormatAddress(addr))
				return err
			})
		},
	}
	addDeviceFlags(cmd, &f)
	return cmd
}

func newDevicesRemoveCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <address>",
		Aliases: []string{"rm"},
		Short:   "Remove a known device",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := presence.ParseAddress(args[0])
			if err != nil {
				return err
			}
			return withRegistry(cmd.Context(), root.resolveConfigPath(), func(r *device.Registry) error {
				if err := r.Delete(cmd.Context(), addr); err != nil {
					return fmt.Errorf("removing %s: %w", presence.FormatAddress(addr), err)
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", presence.FormatAddress(addr))
				return err
			})
		},
	}
}

func addDeviceFlags(cmd *cobra.Command, f *deviceFlags) {
	cmd.Flags().StringVar(&f.stableID, "stable-id", "", "identity that survives address rotation")
	cmd.Flags().StringVar(&f.name, "name", "", "name used when advertisements carry none")
	cmd.Flags().BoolVar(&f.pairable, "pairable", false, "device accepts pairing")
	cmd.Flags().BoolVar(&f.paired, "paired", false, "device is paired with this host")
}

// withRegistry opens the database, loads the registry cache and calls fn.
func withRegistry(ctx context.Context, configPath string, fn func(*device.Registry) error) error {
	db, err := openDatabase(ctx, configPath)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // read-mostly CLI session

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	if err := registry.RefreshCache(ctx); err != nil {
		return fmt.Errorf("loading device registry: %w", err)
	}
	return fn(registry)
}

// openDatabase loads the config and opens the migrated database for the
// offline subcommands.
func openDatabase(ctx context.Context, configPath string) (*database.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

func printDevices(out io.Writer, devices []device.KnownDevice) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(out, "no known devices")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tSTABLE ID\tNAME\tPAIRABLE\tPAIRED")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%t\n",
			presence.FormatAddress(d.Address), d.StableID, d.Name, d.Connection.Pairable, d.Connection.Paired)
	}
	return tw.Flush()
}
