package cmd

import (
	"fmt"
	"sort"

	"github.com/Mohsinsiddi/tkn/internal/config"
	"github.com/Mohsinsiddi/tkn/internal/ui"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		orNone := func(v string) string {
			if v == "" {
				return ui.Meta("(none)")
			}
			return ui.Val(v)
		}
		fmt.Println(ui.KeyValueBlock("Configuration", [][2]string{
			{"default_network", orNone(cfg.DefaultNetwork)},
			{"default_wallet", orNone(cfg.DefaultWallet)},
			{"default_token", orNone(cfg.DefaultToken)},
			{"artifact", orNone(cfg.Artifact)},
			{"log_level", orNone(cfg.LogLevel)},
			{"poll_interval", ui.Val(fmt.Sprintf("%ds", cfg.PollInterval))},
			{"serve_addr", orNone(cfg.ServeAddr)},
		}))

		if len(cfg.Networks) > 0 {
			names := make([]string, 0, len(cfg.Networks))
			for n := range cfg.Networks {
				names = append(names, n)
			}
			sort.Strings(names)
			pairs := make([][2]string, 0, len(names))
			for _, n := range names {
				pairs = append(pairs, [2]string{n, ui.Addr(cfg.Networks[n].RPC)})
			}
			fmt.Println(ui.KeyValueBlock("Custom networks", pairs))
		}
		fmt.Println(ui.Meta("Config directory: " + cfg.Dir()))
		fmt.Println(ui.Meta(fmt.Sprintf("Environment overrides: %s_<KEY>, e.g. %s_DEFAULT_NETWORK", config.EnvPrefix, config.EnvPrefix)))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Set a configuration value",
	Long:      "Set a configuration value. Keys: " + fmt.Sprint(config.Keys()),
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.Keys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("%s set to %q", args[0], args[1])))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
}
