package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/caretrack/internal/paths"
	"github.com/mesh-intelligence/caretrack/pkg/store"
)

func newInitCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the configuration file and local database",
		Long: `Creates the config directory with a default config.yaml and attaches the
local store once so that its schema exists. An existing config.yaml is left
untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(e.configDir, 0o700); err != nil {
				return sysError(fmt.Errorf("create config dir: %w", err))
			}
			cfgPath := paths.ConfigFile(e.configDir)
			written, err := writeConfigIfMissing(cfgPath, e.settings, e.flags.dataDir)
			if err != nil {
				return sysError(fmt.Errorf("write config: %w", err))
			}

			st, err := store.Open(e.settings.StoreConfig(e.dataDir))
			if err != nil {
				return sysError(fmt.Errorf("initialize store: %w", err))
			}
			if err := st.Detach(); err != nil {
				return sysError(err)
			}

			result := map[string]any{
				"config_file":    cfgPath,
				"config_written": written,
				"data_dir":       e.dataDir,
				"backend":        e.settings.Backend,
			}
			return e.emit(result, func(w io.Writer) {
				if written {
					fmt.Fprintf(w, "Wrote %s\n", cfgPath)
				} else {
					fmt.Fprintf(w, "Kept existing %s\n", cfgPath)
				}
				fmt.Fprintf(w, "Initialized %s store in %s\n", e.settings.Backend, e.dataDir)
			})
		},
	}
}
