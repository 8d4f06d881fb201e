package contextasm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/discoclaw/discoclaw/internal/infrastructure/chatservice"
	appErrors "github.com/discoclaw/discoclaw/pkg/errors"
)

// boundary is the fixed string that must appear exactly once, separating
// internal context from the user's own message.
const boundary = "--- internal system context boundary ---"

// personaFiles is the canonical set of workspace-root persona files, read
// in this fixed order when present.
var personaFiles = []string{"SOUL.md", "IDENTITY.md", "USER.md"}

// Config parameterizes one Assembler.
type Config struct {
	WorkspaceDir            string
	PersonaContextModules   string // required directory; process aborts if missing at startup
	ChannelContextBudget    int
	ShortTermBudget         int
	DurableBudget           int
	ReplyChainAndPinsBudget int
	ChannelHistoryBudget    int
	AttachmentBudget        int
}

// Input bundles everything the assembler needs for one message.
type Input struct {
	UserMessage     string
	ChannelContext  string
	ShortTerm       string
	Durable         string
	ReplyChain      []chatservice.Message
	Pins            []chatservice.Message
	ChannelHistory  []chatservice.Message
	AttachmentNotes []string
}

// Assembler composes the single prompt string of spec §4.5.
type Assembler struct {
	cfg Config
}

func NewAssembler(cfg Config) (*Assembler, error) {
	if cfg.PersonaContextModules != "" {
		info, err := os.Stat(cfg.PersonaContextModules)
		if err != nil || !info.IsDir() {
			return nil, appErrors.NewInvalidInputError("persona context modules directory is required and missing: " + cfg.PersonaContextModules)
		}
	}
	return &Assembler{cfg: cfg}, nil
}

// Assemble builds the final prompt: persona_files, persona_context_modules,
// channel_context, short_term, durable, reply_chain_and_pins,
// channel_history, attachment_transcripts, the boundary, then the user
// message. The boundary appears exactly once, immediately before the
// user message.
func (a *Assembler) Assemble(in Input) (string, error) {
	var sections []string

	if personas, err := a.readPersonaFiles(); err == nil && personas != "" {
		sections = append(sections, personas)
	}

	modules, err := a.readPersonaContextModules()
	if err != nil {
		return "", err
	}
	if modules != "" {
		sections = append(sections, modules)
	}

	if in.ChannelContext != "" {
		sections = append(sections, Budget(in.ChannelContext, a.cfg.ChannelContextBudget))
	}
	if in.ShortTerm != "" {
		sections = append(sections, Budget(in.ShortTerm, a.cfg.ShortTermBudget))
	}
	if in.Durable != "" {
		sections = append(sections, Budget(in.Durable, a.cfg.DurableBudget))
	}

	if chain := renderMessages(in.ReplyChain, in.Pins); chain != "" {
		sections = append(sections, Budget(chain, a.cfg.ReplyChainAndPinsBudget))
	}
	if hist := renderMessages(in.ChannelHistory, nil); hist != "" {
		sections = append(sections, Budget(hist, a.cfg.ChannelHistoryBudget))
	}
	if len(in.AttachmentNotes) > 0 {
		sections = append(sections, Budget(strings.Join(in.AttachmentNotes, "\n"), a.cfg.AttachmentBudget))
	}

	sections = append(sections, boundary, in.UserMessage)
	return strings.Join(sections, "\n\n"), nil
}

func (a *Assembler) readPersonaFiles() (string, error) {
	var parts []string
	for _, name := range personaFiles {
		path := filepath.Join(a.cfg.WorkspaceDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue // persona files are optional; only persona context modules hard-fail
		}
		parts = append(parts, string(data))
	}
	return strings.Join(parts, "\n\n"), nil
}

func (a *Assembler) readPersonaContextModules() (string, error) {
	if a.cfg.PersonaContextModules == "" {
		return "", nil
	}
	entries, err := os.ReadDir(a.cfg.PersonaContextModules)
	if err != nil {
		return "", appErrors.NewInvalidInputError("persona context modules directory is required and missing: " + a.cfg.PersonaContextModules)
	}
	var parts []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(a.cfg.PersonaContextModules, e.Name()))
		if err != nil {
			continue
		}
		parts = append(parts, string(data))
	}
	return strings.Join(parts, "\n\n"), nil
}

func renderMessages(messages, pins []chatservice.Message) string {
	var sb strings.Builder
	for _, m := range pins {
		fmt.Fprintf(&sb, "[pinned] %s: %s\n", m.AuthorID, m.Content)
	}
	for _, m := range messages {
		fmt.Fprintf(&sb, "%s: %s\n", m.AuthorID, m.Content)
	}
	return sb.String()
}

// BuildAttachmentNote renders an unsupported attachment as a note rather
// than inlining it, per spec §4.5.
func BuildAttachmentNote(a chatservice.Attachment) string {
	return fmt.Sprintf("[attachment: %s (%s), not inlined]", a.Filename, a.MimeType)
}

// ImageAttachments filters attachments down to those with an image mime
// type; the caller fetches each URL's bytes and builds an entity.Image
// to attach to InvokeParams, since fetching is a network concern this
// package does not own.
func ImageAttachments(attachments []chatservice.Attachment) []chatservice.Attachment {
	var out []chatservice.Attachment
	for _, att := range attachments {
		if strings.HasPrefix(att.MimeType, "image/") {
			out = append(out, att)
		}
	}
	return out
}
