// Package config defines the top-level CLI grammar for the oveye binary.
package config

import "github.com/oveye/oveye/internal/cmd"

// Log groups the logging flags shared by every command.
type Log struct {
	Level   string `help:"Log level" enum:"trace,debug,info,warn,error" default:"info" env:"OVEYE_LOG_LEVEL"`
	File    string `help:"Write logs to this file instead of the console" env:"OVEYE_LOG_FILE"`
	RawFile string `help:"Write a raw USB traffic hex dump to this file" env:"OVEYE_LOG_RAW_FILE"`
	Journal bool   `help:"Also send logs to the systemd journal" env:"OVEYE_LOG_JOURNAL"`
}

// CLI is the root command grammar parsed by kong.
type CLI struct {
	Config string `help:"Path to configuration file" env:"OVEYE_CONFIG"`
	Log    Log    `embed:"" prefix:"log."`

	Capture     cmd.Capture       `cmd:"" help:"Stream frames from a camera"`
	Devices     cmd.Devices       `cmd:"" help:"List attached cameras"`
	Watch       cmd.Watch         `cmd:"" help:"Interactive capture dashboard"`
	ConfigCmd   cmd.ConfigCommand `cmd:"" name:"config" help:"Configuration helpers"`
	InstallUdev cmd.InstallUdev   `cmd:"" name:"install-udev" help:"Install the udev rule granting camera access"`
}
