// Package bot turns inbound chat messages into gif catalog operations and
// renders the results back as chat replies. It is deliberately thin: all
// invariants live in the services layer, and all transport concerns live in
// the gateway. The command surface is fixed:
//
//	::name::          resolve a gif and reply with its raw address
//	~gif              list the community's registered names
//	~send <name>      register the attached .gif under <name>
//	~help             static usage summary
//
// Register commands without a qualifying .gif attachment are dropped with no
// reply at all; that silence is long-standing observable behavior, not an
// oversight. Replies are best-effort: a delivery failure is logged and never
// escalated.
package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-gif-bot/internal/gateway"
	"github.com/tbourn/go-gif-bot/internal/services"
)

const (
	// marker delimits gif names in resolve commands and list output.
	marker = "::"

	cmdHelp = "~help"
	cmdList = "~gif"
	cmdSend = "~send"

	// clipExt is the only attachment extension accepted for registration.
	clipExt = ".gif"

	helpText = "GifBot cmd:\n" +
		"\t- ~gif - show all gifs name\n" +
		"\t- ~send <gif_name> (with attachment) - upload gif and name it with gif_name\n" +
		"\t- ::gif_name:: - send gif"

	replyNotFound = "No gif registered under that name."
	replyFailure  = "Something went wrong, please try again later."
)

// GifCatalog is the slice of the catalog service the router needs.
type GifCatalog interface {
	Upload(ctx context.Context, community, name, filename string, data []byte) error
	Names(ctx context.Context, community string) ([]string, error)
	Address(ctx context.Context, community, name string) (string, error)
}

// Replier delivers a reply to the channel a command came from.
type Replier interface {
	Send(channelID, content string) error
}

// Fetcher downloads attachment bytes from the chat platform's CDN.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Router dispatches chat messages to the gif catalog. It holds no state of
// its own and is safe for concurrent HandleMessage calls.
type Router struct {
	Gifs    GifCatalog
	Replies Replier
	Fetch   Fetcher
}

// NewRouter wires a Router over its collaborators.
func NewRouter(gifs GifCatalog, replies Replier, fetch Fetcher) *Router {
	return &Router{Gifs: gifs, Replies: replies, Fetch: fetch}
}

// HandleMessage inspects one inbound message and runs the matching command,
// if any. Non-command chatter is ignored. Messages without a guild scope are
// ignored too: every catalog operation is community-scoped.
func (r *Router) HandleMessage(ctx context.Context, msg gateway.Message) {
	if msg.GuildID == "" {
		return
	}

	if name, ok := resolveName(msg.Content); ok {
		r.resolve(ctx, msg, name)
		return
	}

	fields := strings.Fields(msg.Content)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case cmdHelp:
		r.reply(msg.ChannelID, helpText)
	case cmdList:
		r.list(ctx, msg)
	case cmdSend:
		r.register(ctx, msg, fields)
	}
}

// resolveName extracts the gif name from a ::name:: command.
func resolveName(content string) (string, bool) {
	if len(content) < 2*len(marker)+1 {
		return "", false
	}
	if !strings.HasPrefix(content, marker) || !strings.HasSuffix(content, marker) {
		return "", false
	}
	return content[len(marker) : len(content)-len(marker)], true
}

func (r *Router) resolve(ctx context.Context, msg gateway.Message, name string) {
	addr, err := r.Gifs.Address(ctx, msg.GuildID, name)
	switch {
	case errors.Is(err, services.ErrNameNotFound):
		r.reply(msg.ChannelID, replyNotFound)
	case err != nil:
		log.Error().Err(err).Str("guild", msg.GuildID).Str("name", name).Msg("gif resolve failed")
		r.reply(msg.ChannelID, replyFailure)
	default:
		r.reply(msg.ChannelID, addr)
	}
}

func (r *Router) list(ctx context.Context, msg gateway.Message) {
	names, err := r.Gifs.Names(ctx, msg.GuildID)
	if err != nil {
		log.Error().Err(err).Str("guild", msg.GuildID).Msg("gif list failed")
		r.reply(msg.ChannelID, replyFailure)
		return
	}

	var b strings.Builder
	b.WriteString("Gifs:\n")
	for _, n := range names {
		b.WriteString("\t" + marker + n + marker + "\n")
	}
	r.reply(msg.ChannelID, b.String())
}

// register handles ~send. Malformed commands (no name token, or anything but
// exactly one .gif attachment) are dropped silently.
func (r *Router) register(ctx context.Context, msg gateway.Message, fields []string) {
	if len(fields) < 2 {
		return
	}
	if len(msg.Attachments) != 1 || !strings.HasSuffix(msg.Attachments[0].Filename, clipExt) {
		return
	}
	name := fields[1]
	att := msg.Attachments[0]

	data, err := r.Fetch.Fetch(ctx, att.URL)
	if err != nil {
		log.Error().Err(err).Str("guild", msg.GuildID).Str("url", att.URL).Msg("attachment download failed")
		r.reply(msg.ChannelID, replyFailure)
		return
	}

	if err := r.Gifs.Upload(ctx, msg.GuildID, name, att.Filename, data); err != nil {
		log.Error().Err(err).Str("guild", msg.GuildID).Str("name", name).Msg("gif upload failed")
		r.reply(msg.ChannelID, replyFailure)
	}
}

// reply sends best-effort: failures are logged, never surfaced.
func (r *Router) reply(channelID, content string) {
	if err := r.Replies.Send(channelID, content); err != nil {
		log.Warn().Err(err).Str("channel", channelID).Msg("reply delivery failed")
	}
}
