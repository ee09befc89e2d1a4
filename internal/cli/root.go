// Package cli holds the cobra commands of the concert client binary.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Vasu1712/scenyx-live/internal/client"
)

const (
	serverKey      = "server"
	tokenKey       = "token"
	userIDKey      = "user_id"
	displayNameKey = "display_name"
)

// NewRootCommand builds the concert command tree. v receives flags, the
// config file and SCENYX_* environment variables.
func NewRootCommand(v *viper.Viper) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "concert",
		Short:         "Join live concerts from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.scenyx.yaml)")
	flags.String("server", "http://localhost:8080", "base URL of the scenyx server")
	flags.String("token", "", "session token sent to the server")
	flags.String("user-id", "", "your user id")
	flags.String("name", "", "your display name")

	_ = v.BindPFlag(serverKey, flags.Lookup("server"))
	_ = v.BindPFlag(tokenKey, flags.Lookup("token"))
	_ = v.BindPFlag(userIDKey, flags.Lookup("user-id"))
	_ = v.BindPFlag(displayNameKey, flags.Lookup("name"))
	v.SetDefault(serverKey, "http://localhost:8080")

	root.AddCommand(newInfoCommand(v), newListCommand(v), newListenCommand(v))
	return root
}

// Execute runs the root command with the global viper instance.
func Execute() {
	if err := NewRootCommand(viper.GetViper()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("finding home directory: %w", err)
		}
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".scenyx")
	}

	v.SetEnvPrefix("SCENYX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	return nil
}

func apiClient(v *viper.Viper) *client.APIClient {
	return client.NewAPIClient(v.GetString(serverKey), v.GetString(tokenKey))
}
