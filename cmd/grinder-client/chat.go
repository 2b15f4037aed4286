package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dkeye/grinder/internal/protocol"
)

var chatCmd = &cobra.Command{
	Use:   "chat <room-code> <message>...",
	Short: "Send one chat message to a room",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := roomCode(args[0])
		if err != nil {
			return err
		}
		text := strings.TrimSpace(strings.Join(args[1:], " "))
		if text == "" {
			return errors.New("empty message")
		}
		return sendOnce(cmd, code, &protocol.ChatMessage{Message: text})
	},
}
