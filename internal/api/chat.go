package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/wolfeidau/wayfarer/internal/models"
)

// ErrEmptyMessage is returned when sending a blank chat message.
var ErrEmptyMessage = errors.New("message text is empty")

// Chat is the client for chat rooms.
type Chat struct {
	r Requester
}

// NewChat creates a chat client.
func NewChat(r Requester) *Chat {
	return &Chat{r: r}
}

// Messages returns the messages posted to room.
func (c *Chat) Messages(ctx context.Context, room string) ([]models.ChatMessage, error) {
	res, err := c.r.Request(ctx, http.MethodGet, messagesPath(room), nil)
	if err != nil {
		return nil, err
	}

	var msgs []models.ChatMessage
	if err := res.DecodeList(&msgs); err != nil {
		return nil, fmt.Errorf("failed to decode chat messages: %w", err)
	}

	return msgs, nil
}

// Send posts text to room and returns the stored message.
func (c *Chat) Send(ctx context.Context, room, text string) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	res, err := c.r.Request(ctx, http.MethodPost, messagesPath(room), map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	var msg models.ChatMessage
	if err := res.Decode(&msg); err != nil {
		return nil, fmt.Errorf("failed to decode chat message: %w", err)
	}
	if msg.Room == "" {
		msg.Room = room
	}

	return &msg, nil
}

func messagesPath(room string) string {
	return "/chat/" + url.PathEscape(room) + "/messages"
}
