package event

import "time"

type MessageCreated struct {
	ChannelID string    `json:"channel_id"`
	MessageID string    `json:"message_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (MessageCreated) Type() Type { return TypeMessageCreated }

type MessageEdited struct {
	ChannelID string    `json:"channel_id"`
	MessageID string    `json:"message_id"`
	Content   string    `json:"content"`
	EditedAt  time.Time `json:"edited_at"`
}

func (MessageEdited) Type() Type { return TypeMessageEdited }

type MessageDeleted struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

func (MessageDeleted) Type() Type { return TypeMessageDeleted }

// MembersChanged carries the member IDs added to and removed from a channel.
type MembersChanged struct {
	ChannelID string   `json:"channel_id"`
	Added     []string `json:"added,omitempty"`
	Removed   []string `json:"removed,omitempty"`
}

func (MembersChanged) Type() Type { return TypeMembersChanged }

type ChannelEdited struct {
	ChannelID   string `json:"channel_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (ChannelEdited) Type() Type { return TypeChannelEdited }

type ChannelDeleted struct {
	ChannelID string `json:"channel_id"`
}

func (ChannelDeleted) Type() Type { return TypeChannelDeleted }

// Preview is an in-progress draft shown to other members while someone types.
// It is fanned out live and never stored.
type Preview struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
}

func (Preview) Type() Type { return TypePreview }
