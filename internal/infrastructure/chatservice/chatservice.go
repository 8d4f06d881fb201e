// Package chatservice defines the boundary interface the domain layer
// uses to talk to the chat/forum backend. A concrete implementation
// (Discord, Telegram, or any other chat API) is out of scope for this
// module; callers wire a real client behind this interface. Grounded on
// the teacher's telegram.ChatService surface, generalized to the
// forum-thread-shaped operations Discoclaw's cron/task/forge flows need.
package chatservice

import "time"

// Message is the minimal chat-service message shape the pipeline and
// context assembler need.
type Message struct {
	ID          string
	ChannelID   string
	GuildID     string
	AuthorID    string
	Content     string
	CreatedAt   time.Time
	ReplyToID   string
	Pinned      bool
	Attachments []Attachment
}

// Attachment is one message attachment reference.
type Attachment struct {
	URL      string
	Filename string
	MimeType string
}

// Thread is a forum-style thread, the source of truth for cron jobs and
// tasks.
type Thread struct {
	ID            string
	ParentForumID string
	Title         string
	Tags          []string
	StarterText   string
}

// ChatService is the full surface Discoclaw's domain packages depend on.
// It declares its methods directly rather than embedding narrower
// interfaces; cmd/discoclawd adapts it to cron's Poster and ThreadSource.
type ChatService interface {
	EditMessage(channelID, messageID, text string) error
	DeleteMessage(channelID, messageID string) error
	PostMessage(channelID, text string) (messageID string, err error)

	History(channelID string, limit int) ([]Message, error)
	Pins(channelID string) ([]Message, error)

	ListCronThreads() ([]Thread, error)
	CreateThread(forumID, title, starterText string, tags []string) (Thread, error)

	CreateChannel(guildID, name string, parentCategoryID string) (channelID string, err error)
	ArchiveChannel(channelID string) error
	BanUser(guildID, userID, reason string) error
	TimeoutUser(guildID, userID string, duration time.Duration, reason string) error
	CreatePoll(channelID, question string, options []string) error
	SetBotProfile(name, avatarURL string) error
}
