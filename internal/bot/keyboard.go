package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/valpere/perevod/internal/lang"
)

const (
	callbackSetPrefix = "lang:set:"
	callbackRootES    = "lang:root:es"
	callbackRootPT    = "lang:root:pt"
	callbackBack      = "lang:back"
)

func setButton(tag lang.Tag) tgbotapi.InlineKeyboardButton {
	p, _ := lang.Lookup(string(tag))
	return tgbotapi.NewInlineKeyboardButtonData(p.Label, callbackSetPrefix+string(tag))
}

func backButton() tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData("⬅ Back", callbackBack)
}

func rootKeyboard() *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(setButton(lang.English), setButton(lang.Russian)),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("ES ▸", callbackRootES),
			tgbotapi.NewInlineKeyboardButtonData("PT ▸", callbackRootPT),
		),
	)
	return &kb
}

func spanishKeyboard() *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(setButton(lang.SpanishSpain), setButton(lang.SpanishLatAm)),
		tgbotapi.NewInlineKeyboardRow(backButton()),
	)
	return &kb
}

func portugueseKeyboard() *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(setButton(lang.PortugueseBrazil), setButton(lang.PortuguesePortugal)),
		tgbotapi.NewInlineKeyboardRow(backButton()),
	)
	return &kb
}
