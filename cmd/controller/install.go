package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shongo-controller/internal/shared/sysinstall"
)

var (
	installAfter  string
	installDryRun bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the controller as a systemd service",
	Long: `install creates the service user and directories, writes the systemd unit
running "serve" with APP_ENV=prod and enables it. Secrets go to the
environment file named in the unit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		layout := sysinstall.DefaultLayout()
		exe, err := sysinstall.ExecutablePath()
		if err != nil {
			return err
		}
		unit := layout.Unit(exe, installAfter)
		if installDryRun {
			fmt.Fprint(cmd.OutOrStdout(), unit)
			return nil
		}
		if !sysinstall.IsRoot() {
			return fmt.Errorf("install must run as root")
		}
		if !sysinstall.HasSystemd() {
			return fmt.Errorf("systemctl not found")
		}
		if err := layout.EnsureUser(); err != nil {
			return err
		}
		if err := layout.EnsureDirectories(); err != nil {
			return err
		}
		if err := layout.InstallUnit(unit); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Installed. Put secrets into %s and run: systemctl start %s\n",
			layout.EnvFile(), sysinstall.ServiceName)
		return nil
	},
}

func init() {
	installCmd.Flags().StringVar(&installAfter, "after", "", "extra systemd After= dependencies, e.g. \"postgresql.service redis.service\"")
	installCmd.Flags().BoolVar(&installDryRun, "dry-run", false, "print the unit file without installing")
}
