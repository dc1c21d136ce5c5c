package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"floorbot/internal/config"
	"floorbot/internal/store"
)

const (
	archiveDBName     = "floorbot.db"
	archiveConfigName = "config.json"
)

func backupCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the SQLite database and the config file",
		Long: `Takes a consistent snapshot of the SQLite database (safe while serve is
running) and writes it with the config file to a .tar.gz archive.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfgPath := resolveConfigPath()
			cfg, err := config.LoadRaw(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Store.Driver != "" && cfg.Store.Driver != store.DriverSQLite {
				return fmt.Errorf("backup supports the sqlite store only; use DynamoDB point-in-time recovery")
			}

			if outputPath == "" {
				ts := time.Now().Format("20060102-150405")
				outputPath = filepath.Join(config.DefaultConfigDir(), "backups", fmt.Sprintf("floorbot-backup-%s.tar.gz", ts))
			}
			if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
				return fmt.Errorf("cannot create backup directory: %w", err)
			}

			tmp, err := os.MkdirTemp("", "floorbot-backup-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(tmp)

			st, err := store.NewSQLiteStore(ctx, storePath(cfg), logger)
			if err != nil {
				return err
			}
			snapshot := filepath.Join(tmp, archiveDBName)
			err = st.Snapshot(ctx, snapshot)
			st.Close()
			if err != nil {
				return err
			}

			entries := map[string]string{archiveDBName: snapshot, archiveConfigName: cfgPath}
			if err := createTarGz(outputPath, entries); err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			info, _ := os.Stat(outputPath)
			size := int64(0)
			if info != nil {
				size = info.Size()
			}
			fmt.Printf("Backup created: %s (%s)\n", outputPath, humanSize(size))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default: ~/.floorbot/backups/floorbot-backup-<timestamp>.tar.gz)")
	return cmd
}

func restoreCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore [archive]",
		Short: "Restore the database and config from a backup archive",
		Long: `Restores the SQLite database and configuration file from an archive created
by 'floorbot backup'. Stop 'floorbot serve' first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			dbPath := config.ExpandPath(config.Defaults().Store.DBPath)
			if cfg, err := config.LoadRaw(cfgPath); err == nil {
				dbPath = storePath(cfg)
			}

			if !force {
				for _, p := range []string{dbPath, cfgPath} {
					if _, err := os.Stat(p); err == nil {
						fmt.Printf("WARNING: %s exists and would be overwritten.\n", p)
						return fmt.Errorf("restore aborted (use --force to proceed)")
					}
				}
			}

			targets := map[string]string{archiveDBName: dbPath, archiveConfigName: cfgPath}
			restored, err := extractTarGz(args[0], targets)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}
			// Stale WAL files would be replayed over the restored database.
			for _, suffix := range []string{"-wal", "-shm"} {
				os.Remove(dbPath + suffix)
			}

			fmt.Printf("Restored from %s:\n", args[0])
			for _, f := range restored {
				fmt.Printf("  - %s\n", f)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing data")
	return cmd
}

// storePath expands the database path of a raw config. Secrets stay unresolved
// so backup and restore work without the serve environment.
func storePath(cfg *config.Config) string {
	return config.ExpandPath(config.ExpandEnvVars(cfg.Store.DBPath))
}

// createTarGz writes each source file under its archive name.
func createTarGz(outputPath string, entries map[string]string) error {
	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)
	for name, src := range entries {
		if err := addFileToTar(tw, name, src); err != nil {
			return fmt.Errorf("add %s: %w", src, err)
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return out.Close()
}

func addFileToTar(tw *tar.Writer, name, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

// extractTarGz restores the known entries to their target paths and skips
// anything else in the archive.
func extractTarGz(archivePath string, targets map[string]string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("not a valid gzip file: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var restored []string
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		target, ok := targets[filepath.Base(header.Name)]
		if !ok || strings.Contains(header.Name, "..") {
			continue
		}
		if err := writeFile(target, tr); err != nil {
			return nil, err
		}
		restored = append(restored, target)
	}
	if len(restored) == 0 {
		return nil, fmt.Errorf("archive %s contains no floorbot data", archivePath)
	}
	return restored, nil
}

func writeFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", path, err)
	}
	return out.Close()
}

func humanSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
