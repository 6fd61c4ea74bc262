//go:build linux

package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/oveye/oveye/ov534"
)

const rulePath = "/etc/udev/rules.d/99-oveye.rules"

func ruleContent() string {
	return fmt.Sprintf(`# Allow console users access to the PlayStation Eye camera.
SUBSYSTEM=="usb", ATTRS{idVendor}=="%04x", ATTRS{idProduct}=="%04x", MODE="0660", TAG+="uaccess"
`, ov534.VendorID, ov534.ProductID)
}

func installRule(logger *slog.Logger) error {
	if err := os.WriteFile(rulePath, []byte(ruleContent()), 0o644); err != nil {
		return err
	}

	steps := [][]string{
		{"control", "--reload-rules"},
		{"trigger", "--subsystem-match=usb"},
	}
	for _, args := range steps {
		if err := runUdevadm(args...); err != nil {
			return err
		}
	}

	logger.Info("udev rule installed", "path", rulePath)
	return nil
}

func uninstallRule(logger *slog.Logger) error {
	var errs []error

	if err := os.Remove(rulePath); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	if err := runUdevadm("control", "--reload-rules"); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	logger.Info("udev rule removed", "path", rulePath)
	return nil
}

func runUdevadm(args ...string) error {
	cmd := exec.Command("udevadm", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("udevadm %s failed: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return nil
}
