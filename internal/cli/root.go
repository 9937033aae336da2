// Package cli implements the brainmem command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/powerbrain/brainmem-go/pkg/core"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
	dbPath     string
	userID     string
	logLevel   string
	logFormat  string
}

// Execute runs the root command with os.Args.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// NewRootCmd builds the brainmem command tree.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "brainmem",
		Short:         "Long-term memory for conversational agents",
		Long:          "brainmem stores what users tell an agent, merges near-duplicates, and recalls the most relevant memories by similarity, importance, recency and use.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "JSON config file (default: environment and .env)")
	pf.StringVar(&flags.envFile, "env-file", "", "load configuration from this .env file")
	pf.StringVar(&flags.dbPath, "db", "", "override the SQLite database path")
	pf.StringVarP(&flags.userID, "user", "u", "", "user the memories belong to")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: json or console")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newRememberCmd(flags))
	root.AddCommand(newRecallCmd(flags))
	root.AddCommand(newForgetCmd(flags))
	root.AddCommand(newListCmd(flags))
	root.AddCommand(newContextCmd(flags))
	root.AddCommand(newExtractCmd(flags))
	return root
}

// loadConfig resolves configuration from --config, --env-file or the
// environment, then applies flag overrides.
func (f *globalFlags) loadConfig() (*core.Config, error) {
	var (
		cfg *core.Config
		err error
	)
	switch {
	case f.configPath != "":
		cfg, err = core.LoadConfigFromJSON(f.configPath)
	case f.envFile != "":
		cfg, err = core.LoadConfigFromEnvFile(f.envFile)
	default:
		cfg, err = core.LoadConfigFromEnv()
	}
	if err != nil {
		return nil, err
	}

	if f.dbPath != "" {
		if cfg.VectorStore.Provider != "sqlite" {
			return nil, fmt.Errorf("--db only applies to the sqlite store, configured store is %q", cfg.VectorStore.Provider)
		}
		if cfg.VectorStore.Config == nil {
			cfg.VectorStore.Config = map[string]interface{}{}
		}
		cfg.VectorStore.Config["db_path"] = f.dbPath
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Logging.Format = f.logFormat
	}
	return cfg, nil
}

func (f *globalFlags) openClient(opts ...core.ClientOption) (*core.Client, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	return core.NewClient(cfg, opts...)
}

func (f *globalFlags) requireUser() error {
	if f.userID == "" {
		return fmt.Errorf("--user is required")
	}
	return nil
}
