package main

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// tgNotifier adapts the Telegram client to the orchestrator's transport boundary.
type tgNotifier struct {
	bot *tgbotapi.BotAPI
}

func (n *tgNotifier) SendStatus(chatID int64, text string) (int, error) {
	sent, err := n.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (n *tgNotifier) EditStatus(chatID int64, msgID int, text string) error {
	if msgID == 0 {
		_, err := n.bot.Send(tgbotapi.NewMessage(chatID, text))
		return err
	}
	_, err := n.bot.Send(tgbotapi.NewEditMessageText(chatID, msgID, text))
	return err
}

func (n *tgNotifier) SendFile(chatID int64, path, caption string) error {
	vid := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(path))
	vid.Caption = caption
	vid.SupportsStreaming = true
	_, err := n.bot.Send(vid)
	return err
}
