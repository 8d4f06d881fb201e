package entity

import "time"

// MemoryItem is one record in a user's DurableMemoryStore.
type MemoryItem struct {
	ID        string       `json:"id"`
	Kind      string       `json:"kind"`
	Text      string       `json:"text"`
	Tags      []string     `json:"tags"`
	Status    string       `json:"status"`
	Source    MemorySource `json:"source"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// MemorySource records where a memory item came from.
type MemorySource struct {
	Type        string `json:"type"`
	ChannelID   string `json:"channel_id,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
	GuildID     string `json:"guild_id,omitempty"`
	ChannelName string `json:"channel_name,omitempty"`
}

// DurableMemoryStore is the per-user file at memory/durable/<user>.json.
type DurableMemoryStore struct {
	Version   int          `json:"version"`
	UpdatedAt time.Time    `json:"updated_at"`
	Items     []MemoryItem `json:"items"`
}

// ShortTermTurn is one turn in a rolling short-term memory window.
// Supplemented entity: spec §4.5 names short-term memory but never gives
// it a shape distinct from DurableMemoryStore; this is that shape.
type ShortTermTurn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ShortTermMemory is the per-user file at memory/shortterm/<user>.json.
type ShortTermMemory struct {
	Version   int             `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Turns     []ShortTermTurn `json:"turns"`
	MaxTurns  int             `json:"max_turns"`
}

// ScaffoldRecord mirrors system-scaffold.json: the bot's discovered or
// provisioned well-known channel ids.
type ScaffoldRecord struct {
	GuildID          string `json:"guild_id,omitempty"`
	SystemCategoryID string `json:"system_category_id,omitempty"`
	CronForumID      string `json:"cron_forum_id,omitempty"`
	TasksForumID     string `json:"tasks_forum_id,omitempty"`
}

// ShutdownContext mirrors shutdown-context.json: the in-flight sessions
// active at a clean shutdown, consumed by cleanup_orphans at next boot.
type ShutdownContext struct {
	SavedAt time.Time       `json:"saved_at"`
	Replies []InFlightReply `json:"replies"`
}
