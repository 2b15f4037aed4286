package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/grinder/internal/client/session"
	"github.com/dkeye/grinder/internal/domain"
	"github.com/dkeye/grinder/internal/protocol"
)

const replyWait = 5 * time.Second

var (
	flagMode         string
	flagMinutes      float64
	flagBreakMinutes float64
)

var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Control a room's shared timer",
}

func timerSub(use, short string, args cobra.PositionalArgs, build func(args []string) (protocol.Message, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := roomCode(args[0])
			if err != nil {
				return err
			}
			msg, err := build(args[1:])
			if err != nil {
				return err
			}
			return sendOnce(cmd, code, msg)
		},
	}
}

func init() {
	start := timerSub("start <room-code>", "Start a work or break phase", cobra.ExactArgs(1), func([]string) (protocol.Message, error) {
		if flagMode != "" && flagMode != "work" && flagMode != "break" {
			return nil, fmt.Errorf("unknown mode %q", flagMode)
		}
		return &protocol.TimerStart{Mode: flagMode, Duration: flagMinutes * 60, BreakDuration: flagBreakMinutes * 60}, nil
	})
	start.Flags().StringVar(&flagMode, "mode", "", "work or break; the current phase when empty")
	start.Flags().Float64Var(&flagMinutes, "minutes", 0, "phase length in minutes; the configured length when 0")
	start.Flags().Float64Var(&flagBreakMinutes, "break", 0, "break length in minutes")

	set := timerSub("set <room-code> <minutes>", "Configure the work length without starting", cobra.ExactArgs(2), func(args []string) (protocol.Message, error) {
		var minutes float64
		if _, err := fmt.Sscanf(args[0], "%g", &minutes); err != nil || minutes <= 0 {
			return nil, fmt.Errorf("invalid minutes %q", args[0])
		}
		return &protocol.TimerSet{Duration: minutes * 60, BreakDuration: flagBreakMinutes * 60}, nil
	})
	set.Flags().Float64Var(&flagBreakMinutes, "break", 0, "break length in minutes")

	simple := func(use, short string, m protocol.Message) *cobra.Command {
		return timerSub(use+" <room-code>", short, cobra.ExactArgs(1), func([]string) (protocol.Message, error) {
			return m, nil
		})
	}
	timerCmd.AddCommand(
		start,
		set,
		simple("pause", "Pause the running phase", &protocol.TimerPause{}),
		simple("resume", "Resume a paused phase", &protocol.TimerResume{}),
		simple("reset", "Stop and clear the timer", &protocol.TimerReset{}),
		simple("finish", "End the current phase and start the next", &protocol.TimerFinish{}),
	)
}

// sendOnce joins the room, sends msg and prints the broadcast it caused.
func sendOnce(cmd *cobra.Command, code domain.RoomCode, msg protocol.Message) error {
	conn, err := dial(cmd)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), replyWait)
	defer cancel()
	reply, err := session.Once(ctx, conn, sessionOptions(code), msg, log.Logger)
	if errors.Is(err, context.DeadlineExceeded) {
		fmt.Fprintln(cmd.OutOrStdout(), "no change")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), describe(reply))
	return nil
}

func describe(m protocol.Message) string {
	switch r := m.(type) {
	case *protocol.TimerStarted:
		return fmt.Sprintf("%s started, %s left", r.Mode, clockFace(r.TimeRemaining))
	case *protocol.TimerResumed:
		return fmt.Sprintf("%s resumed, %s left", r.Mode, clockFace(r.TimeRemaining))
	case *protocol.TimerSync:
		return fmt.Sprintf("%s set to %s", r.Mode, clockFace(r.TimeRemaining))
	case *protocol.TimerPaused:
		return fmt.Sprintf("paused, %s left", clockFace(r.TimeRemaining))
	case *protocol.TimerReset:
		return "timer reset"
	case *protocol.ChatMessage:
		return formatChat(*r)
	}
	return string(m.Kind())
}

func clockFace(seconds float64) string {
	s := int(max(0, seconds))
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

func formatChat(m protocol.ChatMessage) string {
	name := m.UserName
	if name == "" {
		name = string(m.UserID)
	}
	return fmt.Sprintf("[%s] %s: %s", m.Timestamp, name, m.Message)
}
