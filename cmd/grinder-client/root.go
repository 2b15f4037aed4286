package main

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dkeye/grinder/internal/adapters/wsclient"
	"github.com/dkeye/grinder/internal/client/session"
	"github.com/dkeye/grinder/internal/domain"
)

const defaultServer = "ws://localhost:8080/api/ws/signal"

// v holds flag values, overridable by GRINDER_* variables and .env.
var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "grinder-client",
	Short: "Headless participant for grinder focus rooms",
	Long: `grinder-client joins a focus room on a grinder relay, keeps receive-only
media links with every participant, follows the shared pomodoro timer and
prints chat. The timer and chat subcommands send a single control message.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Msg("failed to load .env")
		}
		if lvl, err := zerolog.ParseLevel(v.GetString("log-level")); err == nil {
			zerolog.SetGlobalLevel(lvl)
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("server", defaultServer, "relay signaling WebSocket URL")
	pf.String("api", "", "collaborator API base URL; session tracking is off when empty")
	pf.String("token", "", "bearer token for the collaborator API")
	pf.String("user-id", "", "user id announced on join")
	pf.String("user-name", "", "display name announced on join")
	pf.StringSlice("stun", nil, "STUN server URLs")
	pf.String("log-level", "info", "log level")
	_ = v.BindPFlags(pf)

	v.SetEnvPrefix("GRINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd.AddCommand(joinCmd, timerCmd, chatCmd)
}

// roomCode validates a code the way the relay does.
func roomCode(arg string) (domain.RoomCode, error) {
	code := domain.RoomCode(strings.ToUpper(strings.TrimSpace(arg)))
	if code == "" || len(code) > 16 {
		return "", errors.New("room code must be 1 to 16 letters or digits")
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", errors.New("room code must be 1 to 16 letters or digits")
		}
	}
	return code, nil
}

func sessionOptions(code domain.RoomCode) session.Options {
	return session.Options{
		Room:     code,
		UserID:   domain.UserID(v.GetString("user-id")),
		UserName: v.GetString("user-name"),
	}
}

func dial(cmd *cobra.Command) (*wsclient.Client, error) {
	return wsclient.Dial(cmd.Context(), v.GetString("server"), nil, log.Logger)
}
