package cmd

import "log/slog"

// InstallUdev manages the udev rule that grants console users access to
// the camera. Linux only.
type InstallUdev struct {
	Uninstall bool `help:"Remove the udev rule instead of installing it"`
}

// Run is called by Kong when the install-udev command is executed.
func (i *InstallUdev) Run(logger *slog.Logger) error {
	if i.Uninstall {
		return uninstallRule(logger)
	}
	return installRule(logger)
}
