//go:build !linux

package cmd

import (
	"errors"
	"log/slog"
)

var errUdevUnsupported = errors.New("udev rules are only supported on Linux")

func installRule(*slog.Logger) error   { return errUdevUnsupported }
func uninstallRule(*slog.Logger) error { return errUdevUnsupported }
