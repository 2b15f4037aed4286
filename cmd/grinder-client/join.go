package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/grinder/internal/adapters/rtc"
	"github.com/dkeye/grinder/internal/client/collab"
	"github.com/dkeye/grinder/internal/client/media"
	"github.com/dkeye/grinder/internal/client/session"
	"github.com/dkeye/grinder/internal/domain"
	"github.com/dkeye/grinder/internal/protocol"
)

var (
	flagPomodoroMinutes int
	flagStatsInterval   time.Duration
)

var joinCmd = &cobra.Command{
	Use:   "join <room-code>",
	Short: "Join a room and stay until interrupted",
	Long: `Join a room, receive every participant's media, follow the shared timer
and print chat until interrupted.

Examples:
  grinder-client join AB12CD --user-name alice
  grinder-client join AB12CD --api http://localhost:3000 --token $TOKEN`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := roomCode(args[0])
		if err != nil {
			return err
		}
		return joinRoom(cmd, code)
	},
}

func init() {
	joinCmd.Flags().IntVar(&flagPomodoroMinutes, "pomodoro", domain.DefaultWorkDuration/60, "pomodoro length reported to the collaborator API, in minutes")
	joinCmd.Flags().DurationVar(&flagStatsInterval, "stats-interval", 30*time.Second, "how often to print media statistics, 0 disables")
}

func joinRoom(cmd *cobra.Command, code domain.RoomCode) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	stats := media.NewStats()
	router := media.NewRouter(log.Logger, stats.Factory())
	dialer, err := rtc.NewDialer(ctx, rtc.DefaultWebRTCConfig(v.GetStringSlice("stun")...), router, log.Logger)
	if err != nil {
		return err
	}

	opts := sessionOptions(code)
	opts.Media = router
	opts.PomodoroMinutes = flagPomodoroMinutes
	if api := v.GetString("api"); api != "" {
		client, err := collab.NewClient(api, v.GetString("token"), nil, log.Logger)
		if err != nil {
			return err
		}
		opts.Collab = client
	}

	conn, err := dial(cmd)
	if err != nil {
		return err
	}
	s := session.New(conn, dialer, opts, log.Logger)
	s.OnChat(func(m protocol.ChatMessage) {
		fmt.Fprintln(out, formatChat(m))
	})
	s.Timer().OnComplete(func(mode domain.TimerMode) {
		fmt.Fprintf(out, "%s phase complete\n", mode)
	})

	if flagStatsInterval > 0 {
		go printStats(cmd, stats, flagStatsInterval)
	}

	fmt.Fprintf(out, "joined %s\n", code)
	return s.Run(ctx)
}

func printStats(cmd *cobra.Command, stats *media.Stats, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-cmd.Context().Done():
			return
		case <-t.C:
			for _, ts := range stats.Snapshot() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d packets, %d bytes, %d lost\n",
					ts.Remote, ts.Kind, ts.Packets, ts.Bytes, ts.Lost)
			}
		}
	}
}
