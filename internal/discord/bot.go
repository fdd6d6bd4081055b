package discord

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"campusverify/internal/qr"
	"campusverify/internal/verification/service"
)

// verifyCommand triggers link issuance from chat.
const verifyCommand = "!verify"

// commandTimeout bounds link issuance started from a chat message.
const commandTimeout = 15 * time.Second

// LinkCreator is the slice of the orchestrator the bot needs.
type LinkCreator interface {
	CreateVerificationLink(ctx context.Context, subjectID string) (*service.Link, error)
}

// Bot owns the gateway session and the !verify command handler. Provisioning
// does not go through the gateway; the RoleDirectory uses the same session's
// REST client.
type Bot struct {
	session *discordgo.Session
	links   LinkCreator
	log     *log.Logger
}

// NewSession prepares a gateway session with the intents the command surface
// needs. The same session's REST client backs the RoleDirectory.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMembers |
		discordgo.IntentGuildMessages |
		discordgo.IntentMessageContent |
		discordgo.IntentDirectMessages
	return session, nil
}

// NewBot registers the command handler on the session. Open must be called to
// connect.
func NewBot(session *discordgo.Session, links LinkCreator, logger *log.Logger) *Bot {
	b := &Bot{session: session, links: links, log: logger}
	session.AddHandler(b.onMessage)
	return b
}

// Open connects to the gateway.
func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	b.log.Printf("discord bot connected as %s", b.session.State.User.Username)
	return nil
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	return b.session.Close()
}

// onMessage handles the !verify command: issue a link and deliver it
// privately, falling back to a public reply when the DM is refused.
func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if !strings.EqualFold(strings.TrimSpace(m.Content), verifyCommand) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	link, err := b.links.CreateVerificationLink(ctx, m.Author.ID)
	if err != nil {
		b.log.Printf("verify command failed user=%s: %v", m.Author.ID, err)
		b.reply(s, m, "Could not generate a verification link. Please try again later.")
		return
	}

	if err := b.sendPrivateLink(s, m.Author.ID, link); err != nil {
		// DMs closed; the link is still single-use and short-lived, so a
		// public fallback is acceptable.
		b.log.Printf("dm failed user=%s: %v", m.Author.ID, err)
		b.reply(s, m, "Couldn't DM you. Use this link instead:\n"+link.URL)
		return
	}
	b.reply(s, m, "I've sent you a DM with your verification link.")
}

func (b *Bot) sendPrivateLink(s *discordgo.Session, userID string, link *service.Link) error {
	channel, err := s.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}

	msg := &discordgo.MessageSend{
		Content: "To verify your institute email, open this link (valid 5 minutes) or scan the QR code:\n" + link.URL,
	}
	if png, err := qr.PNG(link.URL); err == nil {
		msg.Files = []*discordgo.File{{
			Name:        "verify-qr.png",
			ContentType: "image/png",
			Reader:      bytes.NewReader(png),
		}}
	}

	if _, err := s.ChannelMessageSendComplex(channel.ID, msg); err != nil {
		return fmt.Errorf("send dm: %w", err)
	}
	return nil
}

func (b *Bot) reply(s *discordgo.Session, m *discordgo.MessageCreate, content string) {
	if _, err := s.ChannelMessageSendReply(m.ChannelID, content, m.Reference()); err != nil {
		b.log.Printf("reply failed channel=%s: %v", m.ChannelID, err)
	}
}
