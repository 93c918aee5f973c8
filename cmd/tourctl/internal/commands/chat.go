package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
)

// ChatCmd reads and posts chat messages.
type ChatCmd struct {
	Messages ChatMessagesCmd `cmd:"" help:"List messages in a room"`
	Send     ChatSendCmd     `cmd:"" help:"Post a message to a room"`
}

type ChatMessagesCmd struct {
	Room string `arg:"" help:"Room name"`
}

func (m *ChatMessagesCmd) Run(ctx context.Context, globals *Globals) error {
	c, err := globals.client()
	if err != nil {
		return err
	}
	defer c.Close()

	msgs, err := c.Chat.Messages(ctx, m.Room)
	if err != nil {
		return describe(err)
	}

	out := globals.stdout()
	if len(msgs) == 0 {
		fmt.Fprintf(out, "No messages in %s.\n", m.Room)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SENT\tFROM\tMESSAGE")
	for _, msg := range msgs {
		from := msg.Sender
		if from == "" {
			from = msg.SenderID
		}
		sent := "-"
		if !msg.SentAt.IsZero() {
			sent = msg.SentAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", sent, from, msg.Text)
	}
	w.Flush()

	return nil
}

type ChatSendCmd struct {
	Room string   `arg:"" help:"Room name"`
	Text []string `arg:"" help:"Message text"`
}

func (s *ChatSendCmd) Run(ctx context.Context, globals *Globals) error {
	c, err := globals.client()
	if err != nil {
		return err
	}
	defer c.Close()

	msg, err := c.Chat.Send(ctx, s.Room, strings.Join(s.Text, " "))
	if err != nil {
		return describe(err)
	}

	fmt.Fprintf(globals.stdout(), "Sent message %s to %s.\n", msg.ID, msg.Room)
	return nil
}
