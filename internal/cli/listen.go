package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Vasu1712/scenyx-live/internal/client"
)

func newListenCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "listen <concert-id>",
		Short: "Open the live concert view",
		Long: `Opens the concert channel and shows chat, reactions and who comes and goes.
Type to chat; /fire, /heart and /clap react; /reconnect rejoins after a
disconnect; /quit leaves.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := v.GetString(userIDKey)
			name := v.GetString(displayNameKey)
			if v.GetString(tokenKey) == "" && (userID == "" || name == "") {
				return errors.New("--user-id and --name are required without a session token")
			}
			if name == "" {
				name = userID
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			api := apiClient(v)
			return client.RunTUI(ctx, client.ViewConfig{
				ConcertID:   args[0],
				UserID:      userID,
				DisplayName: name,
				Concerts:    api,
				Dialer:      &client.WSDialer{API: api},
			})
		},
	}
}
