package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dheyman/epiflux/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage epiflux configuration",
	Long:  `Read and write epiflux configuration stored in config.json.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config.json in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config.json already exists at %s (delete it first to re-initialise)", path)
		}
		tmpl := config.Template()
		if err := config.WriteFile(path, tmpl); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "  Edit it and point tsdb_url at your InfluxDB instance.")
		return nil
	},
}

var configGetShowSecrets bool

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Flags{
			TSDBURL:  globalFlags.TSDBURL,
			Database: globalFlags.Database,
		})
		if err != nil {
			return err
		}

		password := cfg.RedactedPassword()
		if configGetShowSecrets {
			password = cfg.TSDBPassword
		}
		if cfg.TSDBPassword == "" {
			password = "(not set)"
		}

		src := "(not found)"
		if cfg.ConfigPath != "" {
			src = cfg.ConfigPath
		}

		rows := [][]string{
			{"tsdb_url", cfg.TSDBURL},
			{"tsdb_user", cfg.TSDBUser},
			{"tsdb_password", password},
			{"database", cfg.Database},
			{"precision", cfg.Precision},
			{"timeout", cfg.Timeout.String()},
			{"concurrency", fmt.Sprintf("%d", cfg.Concurrency)},
			{"rate", fmt.Sprintf("%.1f req/s", cfg.Rate)},
			{"store_path", cfg.StorePath},
			{"config_file", src},
		}
		printKVTable(cmd.OutOrStdout(), rows)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in config.json",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.ToLower(args[0])
		val := args[1]

		f, path, err := loadConfigFile()
		if err != nil {
			path = config.DefaultConfigFile
			tmpl := config.Template()
			f = &tmpl
		}

		switch key {
		case "tsdb_url":
			f.TSDBURL = val
		case "tsdb_user":
			f.TSDBUser = val
		case "tsdb_password":
			f.TSDBPassword = val
		case "database":
			f.Database = val
		case "precision":
			f.Precision = val
		case "timeout":
			f.Timeout = val
		case "concurrency":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("concurrency must be an integer")
			}
			f.Concurrency = n
		case "rate":
			r, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("rate must be a number")
			}
			f.Rate = r
		case "store_path":
			f.StorePath = val
		default:
			return fmt.Errorf("unknown config key: %q\n\nValid keys: tsdb_url, tsdb_user, tsdb_password, database, precision, timeout, concurrency, rate, store_path", key)
		}

		if err := config.WriteFile(path, *f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s in %s\n", key, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configGetCmd.Flags().BoolVar(&configGetShowSecrets, "show-secrets", false, "show tsdb password in plain text")
}

// loadConfigFile reads config.json from cwd; used by configSetCmd.
func loadConfigFile() (*config.File, string, error) {
	path := config.DefaultConfigFile
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	var f config.File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", err
	}
	return &f, path, nil
}
