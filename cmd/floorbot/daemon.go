package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/spf13/cobra"

	"floorbot/internal/config"
)

const (
	launchdLabel = "com.floorbot.server"
	systemdUnit  = "floorbot.service"
)

// serviceDef is rendered into a launchd plist or a systemd user unit.
type serviceDef struct {
	Label   string
	Exec    string
	Config  string
	EnvFile string
	Log     string
	ErrLog  string
}

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage floorbot as a background service",
	}
	cmd.AddCommand(installDaemonCmd(), uninstallDaemonCmd())
	return cmd
}

func installDaemonCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install 'floorbot serve' as a launchd agent or systemd user unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			svc := newServiceDef(execPath, resolveConfigPath())

			var tmpl *template.Template
			var dest string
			switch runtime.GOOS {
			case "darwin":
				tmpl, dest = launchdTmpl, launchdPath()
			case "linux":
				tmpl, dest = systemdTmpl, systemdPath()
			default:
				return fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", runtime.GOOS)
			}

			out, err := renderService(tmpl, svc)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Print(out)
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(svc.Log), 0o755); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(dest, []byte(out), 0o644); err != nil {
				return err
			}

			fmt.Printf("Daemon installed: %s\n", dest)
			if runtime.GOOS == "darwin" {
				fmt.Printf("To start: launchctl load %s\n", dest)
				fmt.Printf("To stop:  launchctl unload %s\n", dest)
			} else {
				fmt.Printf("To start:  systemctl --user daemon-reload && systemctl --user start floorbot\n")
				fmt.Printf("To enable: systemctl --user enable floorbot\n")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the service file instead of installing it")
	return cmd
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the floorbot service file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var dest string
			switch runtime.GOOS {
			case "darwin":
				dest = launchdPath()
			case "linux":
				dest = systemdPath()
			default:
				return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
			}
			if err := os.Remove(dest); err != nil {
				return fmt.Errorf("remove %s: %w", dest, err)
			}
			fmt.Printf("Daemon uninstalled: %s\n", dest)
			return nil
		},
	}
}

func newServiceDef(execPath, cfgPath string) serviceDef {
	dir := config.DefaultConfigDir()
	return serviceDef{
		Label:   launchdLabel,
		Exec:    execPath,
		Config:  cfgPath,
		EnvFile: filepath.Join(dir, ".env"),
		Log:     filepath.Join(dir, "logs", "floorbot.log"),
		ErrLog:  filepath.Join(dir, "logs", "floorbot-error.log"),
	}
}

func renderService(t *template.Template, svc serviceDef) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, svc); err != nil {
		return "", fmt.Errorf("render service file: %w", err)
	}
	return buf.String(), nil
}

func launchdPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
}

func systemdPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "systemd", "user", systemdUnit)
}

var launchdTmpl = template.Must(template.New("launchd").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Exec}}</string>
        <string>serve</string>
        <string>--config</string>
        <string>{{.Config}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{.Log}}</string>
    <key>StandardErrorPath</key>
    <string>{{.ErrLog}}</string>
</dict>
</plist>
`))

// The env file is optional; "-" tells systemd not to fail when it is absent.
var systemdTmpl = template.Must(template.New("systemd").Parse(`[Unit]
Description=floorbot WhatsApp quote assistant
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
EnvironmentFile=-{{.EnvFile}}
ExecStart={{.Exec}} serve --config {{.Config}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`))
