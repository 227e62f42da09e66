// Package bot is the Telegram chat surface: it caches incoming text or voice
// transcripts, offers a language keyboard and replies with the translation.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/valpere/perevod/internal/cache"
	"github.com/valpere/perevod/internal/classifier"
	"github.com/valpere/perevod/internal/lang"
	"github.com/valpere/perevod/internal/orchestrator"
	"github.com/valpere/perevod/internal/telegram"
)

const (
	msgStart         = "Send me text or a voice message and choose a target language."
	msgChoose        = "Choose a target language:"
	msgAccessDenied  = "Access denied."
	msgNoTranscript  = "Could not transcribe the audio."
	msgUnsupported   = "Unsupported target language."
	msgNothingToSend = "No text to translate. Send a message first."

	// maxMessageRunes keeps replies under Telegram's 4096 character limit.
	maxMessageRunes  = 3900
	documentFilename = "translation.txt"
)

// API is the subset of the Bot API the bot uses. *telegram.Client satisfies it.
type API interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type Router interface {
	Route(ctx context.Context, req orchestrator.Request) orchestrator.Outcome
}

type Options struct {
	AllowedUsernames []string
	// PollTimeout is the getUpdates long-poll timeout in seconds.
	PollTimeout int
	// MaxConcurrent bounds the number of updates handled at once.
	MaxConcurrent int
	CacheTTL      time.Duration
}

type Bot struct {
	api     API
	router  Router
	stt     Transcriber
	logger  zerolog.Logger
	opts    Options
	allowed map[string]bool
	texts   *cache.TextCache
	seen    *cache.Seen
}

// New builds the bot. stt may be nil, in which case voice messages are refused.
func New(api API, router Router, stt Transcriber, logger zerolog.Logger, opts Options) *Bot {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}

	allowed := make(map[string]bool, len(opts.AllowedUsernames))
	for _, n := range opts.AllowedUsernames {
		n = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(n), "@"))
		if n != "" {
			allowed[n] = true
		}
	}

	return &Bot{
		api:     api,
		router:  router,
		stt:     stt,
		logger:  logger,
		opts:    opts,
		allowed: allowed,
		texts:   cache.NewTextCache(opts.CacheTTL, cache.DefaultMaxEntries),
		seen:    cache.NewSeen(),
	}
}

// Run long-polls for updates until ctx is done. Updates are handled
// concurrently; Run waits for in-flight handlers before returning.
func (b *Bot) Run(ctx context.Context) error {
	sem := make(chan struct{}, b.opts.MaxConcurrent)
	var wg sync.WaitGroup
	defer wg.Wait()

	poll := tgbotapi.NewUpdate(0)
	poll.Timeout = b.opts.PollTimeout
	poll.AllowedUpdates = []string{"message", "callback_query"}

	b.logger.Info().Int("poll_timeout", b.opts.PollTimeout).Msg("bot polling started")
	for {
		if ctx.Err() != nil {
			b.logger.Info().Msg("bot polling stopped")
			return nil
		}
		updates, err := b.api.GetUpdates(poll)
		if err != nil {
			if ctx.Err() != nil {
				b.logger.Info().Msg("bot polling stopped")
				return nil
			}
			wait := time.Second
			if d := telegram.RetryAfter(err); d > 0 {
				wait = d
			}
			b.logger.Warn().Err(err).Dur("wait", wait).Msg("getUpdates failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= poll.Offset {
				poll.Offset = u.UpdateID + 1
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			wg.Add(1)
			go func(u tgbotapi.Update) {
				defer wg.Done()
				defer func() { <-sem }()
				b.HandleUpdate(ctx, u)
			}(u)
		}
	}
}

// HandleUpdate dispatches one update.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		b.handleMessage(ctx, u.Message)
	}
}

func (b *Bot) hasAccess(username string) bool {
	if len(b.allowed) == 0 {
		return true
	}
	return username != "" && b.allowed[strings.ToLower(username)]
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.Chat == nil {
		return
	}
	if !b.hasAccess(username(m.From)) {
		b.reply(m, msgAccessDenied, nil)
		return
	}

	switch {
	case m.Voice != nil:
		b.handleVoice(ctx, m)
	case strings.HasPrefix(m.Text, "/start"):
		b.reply(m, msgStart, nil)
	case strings.HasPrefix(m.Text, "/"):
	default:
		b.handleText(ctx, m)
	}
}

func (b *Bot) handleText(ctx context.Context, m *tgbotapi.Message) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}
	b.texts.Put(cache.Key(m.Chat.ID, m.MessageID), cache.Entry{Text: text, Source: classifier.SourceText})
	b.reply(m, msgChoose, rootKeyboard())
}

func (b *Bot) handleVoice(ctx context.Context, m *tgbotapi.Message) {
	text, err := b.transcribe(ctx, m.Voice.FileID)
	if err != nil {
		b.logger.Warn().Err(err).Int64("chat_id", m.Chat.ID).Msg("voice transcription failed")
		b.reply(m, msgNoTranscript, nil)
		return
	}
	b.texts.Put(cache.Key(m.Chat.ID, m.MessageID), cache.Entry{Text: text, Source: classifier.SourceSpeech})
	b.reply(m, "Transcribed text:\n\n"+text+"\n\n"+msgChoose, rootKeyboard())
}

func (b *Bot) transcribe(ctx context.Context, fileID string) (string, error) {
	if b.stt == nil {
		return "", errors.New("speech-to-text is not configured")
	}
	audio, err := b.api.DownloadFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	return b.stt.Transcribe(ctx, audio)
}

func username(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	return u.UserName
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if !b.hasAccess(username(q.From)) {
		b.answer(q.ID, msgAccessDenied, true)
		return
	}
	if !b.seen.Mark(q.ID) {
		b.answer(q.ID, "", false)
		return
	}
	b.answer(q.ID, "", false)

	if q.Message == nil || q.Message.Chat == nil {
		return
	}
	msg := q.Message

	switch q.Data {
	case callbackRootES:
		b.editMarkup(msg, spanishKeyboard())
		return
	case callbackRootPT:
		b.editMarkup(msg, portugueseKeyboard())
		return
	case callbackBack:
		b.editMarkup(msg, rootKeyboard())
		return
	}

	if !strings.HasPrefix(q.Data, callbackSetPrefix) {
		return
	}
	target := strings.TrimPrefix(q.Data, callbackSetPrefix)
	if !lang.IsSupported(target) {
		b.edit(msg, msgUnsupported, "")
		return
	}

	if msg.ReplyToMessage == nil || msg.Chat.ID == 0 {
		b.edit(msg, msgNothingToSend, "")
		return
	}
	entry, ok := b.texts.Get(cache.Key(msg.Chat.ID, msg.ReplyToMessage.MessageID))
	if !ok {
		b.edit(msg, msgNothingToSend, "")
		return
	}

	out := b.router.Route(ctx, orchestrator.Request{Text: entry.Text, Target: target, Source: entry.Source})
	b.deliver(msg, out)
}

func (b *Bot) deliver(msg *tgbotapi.Message, out orchestrator.Outcome) {
	switch o := out.(type) {
	case *orchestrator.Failure:
		b.edit(msg, "Translation error: "+o.Error, "")
	case *orchestrator.Success:
		provider := o.Provider
		if provider == "" {
			provider = "unknown"
		}
		text := FormatTranslation(o.Text) + "\n\nProvider: " + provider
		if utf8.RuneCountInString(text) <= maxMessageRunes {
			b.edit(msg, text, tgbotapi.ModeHTML)
			return
		}
		b.edit(msg, "Sent as file.\n\nProvider: "+provider, "")
		doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FileBytes{Name: documentFilename, Bytes: []byte(o.Text)})
		doc.ReplyToMessageID = msg.MessageID
		if _, err := b.api.Send(doc); err != nil {
			b.logger.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("send document failed")
		}
	}
}

// FormatTranslation wraps text in a <pre> block, escaping only the HTML
// metacharacters so whitespace and emoji survive untouched.
func FormatTranslation(text string) string {
	return "<pre>" + htmlEscaper.Replace(text) + "</pre>"
}

// Quotes are left alone: Telegram does not need them escaped inside <pre>.
var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func (b *Bot) reply(m *tgbotapi.Message, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	out := tgbotapi.NewMessage(m.Chat.ID, text)
	out.ReplyToMessageID = m.MessageID
	if markup != nil {
		out.ReplyMarkup = markup
	}
	if _, err := b.api.Send(out); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", m.Chat.ID).Msg("send message failed")
	}
}

func (b *Bot) edit(msg *tgbotapi.Message, text, parseMode string) {
	cfg := tgbotapi.NewEditMessageText(msg.Chat.ID, msg.MessageID, text)
	cfg.ParseMode = parseMode
	_, err := b.api.Request(cfg)
	if err != nil && !telegram.IsNotModified(err) {
		b.logger.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("edit message failed")
	}
}

func (b *Bot) editMarkup(msg *tgbotapi.Message, markup *tgbotapi.InlineKeyboardMarkup) {
	_, err := b.api.Request(tgbotapi.NewEditMessageReplyMarkup(msg.Chat.ID, msg.MessageID, *markup))
	if err != nil && !telegram.IsNotModified(err) {
		b.logger.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("edit keyboard failed")
	}
}

func (b *Bot) answer(id, text string, alert bool) {
	cfg := tgbotapi.NewCallback(id, text)
	cfg.ShowAlert = alert
	if _, err := b.api.Request(cfg); err != nil {
		b.logger.Warn().Err(err).Str("callback_id", id).Msg("answer callback failed")
	}
}
