package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"floorbot/internal/config"
	"floorbot/internal/content"
	"floorbot/internal/store"
)

type checkReport struct {
	passed, warned, failed int
}

func (r *checkReport) pass(check, detail string) {
	r.passed++
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func (r *checkReport) warn(check, detail string) {
	r.warned++
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

func (r *checkReport) fail(check, detail string) {
	r.failed++
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your floorbot installation",
		Long: `Verifies the configuration, secrets, store, content catalog and
listening port. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			cfgPath := resolveConfigPath()
			fmt.Printf("floorbot doctor v%s\n\n", version)
			r := &checkReport{}

			if _, err := os.Stat(cfgPath); err != nil {
				r.fail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'floorbot init' to create a configuration.\n")
				return fmt.Errorf("config file missing")
			}
			r.pass("Config file", cfgPath)

			cfg, err := loadConfig(ctx)
			if err != nil {
				r.fail("Config", err.Error())
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			r.pass("Config", "valid, secrets resolved")

			checkWhatsApp(cfg, r)
			checkStore(ctx, cfg, r)

			if cfg.Content.Path == "" {
				r.pass("Content", "embedded catalog")
			} else if _, err := content.Load(cfg.Content.Path); err != nil {
				r.fail("Content", err.Error())
			} else {
				r.pass("Content", cfg.Content.Path)
			}

			if cfg.Notify.Telegram.Enabled {
				r.pass("Telegram", fmt.Sprintf("%d operator chat(s)", len(cfg.Notify.Telegram.ChatIDs)))
			} else {
				r.warn("Telegram", "disabled, operators will not be notified of handoffs and quotes")
			}

			if cfg.Server.Admin.Enabled {
				r.pass("Admin API", "basic auth for "+cfg.Server.Admin.Username)
			} else {
				r.warn("Admin API", "disabled")
			}

			addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
			if err := checkPort(addr); err != nil {
				r.warn("Listen address", fmt.Sprintf("%s may be in use: %v", addr, err))
			} else {
				r.pass("Listen address", addr+" available")
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
			if r.failed > 0 {
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			return nil
		},
	}
}

func checkWhatsApp(cfg *config.Config, r *checkReport) {
	w := cfg.WhatsApp
	if !w.Enabled {
		r.fail("WhatsApp", "disabled, 'floorbot serve' will refuse to start")
		return
	}
	for name, v := range map[string]string{
		"appSecret":     w.AppSecret,
		"accessToken":   w.AccessToken,
		"verifyToken":   w.VerifyToken,
		"phoneNumberId": w.PhoneNumberID,
	} {
		if strings.HasPrefix(v, "${") {
			r.fail("WhatsApp", fmt.Sprintf("%s is an unset variable %s", name, v))
			return
		}
	}
	r.pass("WhatsApp", fmt.Sprintf("phone number %s, API %s, webhook %s", w.PhoneNumberID, w.APIVersion, w.WebhookPath))
}

func checkStore(ctx context.Context, cfg *config.Config, r *checkReport) {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		r.fail("Store", err.Error())
		return
	}
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		r.fail("Store", err.Error())
		return
	}
	detail := cfg.Store.Driver
	switch s := st.(type) {
	case *store.SQLiteStore:
		if v, err := s.SchemaVersion(ctx); err == nil {
			detail = fmt.Sprintf("sqlite %s (schema v%d)", cfg.Store.DBPath, v)
		}
	case *store.DynamoStore:
		detail = "dynamodb table " + cfg.Store.DynamoTable
	}
	r.pass("Store", detail)
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
