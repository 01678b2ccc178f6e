package main

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/you/tg-transcoder/internal/jobs"
	"github.com/you/tg-transcoder/internal/profile"
)

// Callback data formats. The session id rides in the data so this process can
// stay stateless; the worker validates ownership.
//
//	res:<sid>:<resolution>            single profile, default quality/format
//	all:<sid>                         fixed batch, default quality/format
//	adv:<sid>                         advanced: start resolution pick
//	advr:<sid>:<res>                  advanced: quality pick
//	advq:<sid>:<res>:<q>              advanced: format pick
//	advf:<sid>:<res>:<q>:<f>          advanced: run it
func (s *server) onCallback(cq *tgbotapi.CallbackQuery) {
	data := cq.Data
	userID := cq.From.ID
	chatID := cq.Message.Chat.ID

	op, rest, _ := strings.Cut(data, ":")
	parts := strings.Split(rest, ":")
	sid := parts[0]

	log.Info().Int64("user_id", userID).Str("data", data).Msg("callback")

	switch op {
	case "res":
		if len(parts) != 2 {
			s.answerCB(cq, "")
			return
		}
		s.answerCB(cq, "Converting to "+parts[1])
		s.enqueue(chatID, jobs.TaskConvert, jobs.ConvertPayload{
			SessionID: sid, ChatID: chatID, UserID: userID,
			Resolution: parts[1],
		})

	case "all":
		s.answerCB(cq, "Converting to 360p+480p+720p")
		s.enqueue(chatID, jobs.TaskConvert, jobs.ConvertPayload{
			SessionID: sid, ChatID: chatID, UserID: userID,
			Batch: true,
		})

	case "adv":
		s.answerCB(cq, "")
		s.editKeyboard(cq, "🎯 Resolution:", advResolutionKeyboard(sid))

	case "advr":
		if len(parts) != 2 {
			s.answerCB(cq, "")
			return
		}
		s.answerCB(cq, "")
		s.editKeyboard(cq, "⚙️ Quality:", advQualityKeyboard(sid, parts[1]))

	case "advq":
		if len(parts) != 3 {
			s.answerCB(cq, "")
			return
		}
		s.answerCB(cq, "")
		s.editKeyboard(cq, "📦 Container:", advFormatKeyboard(sid, parts[1], parts[2]))

	case "advf":
		if len(parts) != 4 {
			s.answerCB(cq, "")
			return
		}
		s.answerCB(cq, fmt.Sprintf("Converting: %s/%s/%s", parts[1], parts[2], parts[3]))
		s.enqueue(chatID, jobs.TaskConvert, jobs.ConvertPayload{
			SessionID: sid, ChatID: chatID, UserID: userID,
			Resolution: parts[1], Quality: parts[2], Format: parts[3],
		})

	default:
		s.answerCB(cq, "")
	}
}

func (s *server) editKeyboard(cq *tgbotapi.CallbackQuery, text string, kb tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(cq.Message.Chat.ID, cq.Message.MessageID, text, kb)
	_, _ = s.bot.Send(edit)
}

func advResolutionKeyboard(sid string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, r := range profile.Resolutions {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(string(r), fmt.Sprintf("advr:%s:%s", sid, r)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func advQualityKeyboard(sid, res string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, q := range profile.Qualities {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(string(q), fmt.Sprintf("advq:%s:%s:%s", sid, res, q)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func advFormatKeyboard(sid, res, q string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, f := range profile.Formats {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(string(f), fmt.Sprintf("advf:%s:%s:%s:%s", sid, res, q, f)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func formatsText() string {
	var b strings.Builder
	b.WriteString("Supported profiles:\n\n🎯 Resolutions: ")
	for i, r := range profile.Resolutions {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(r))
	}
	b.WriteString("\n⚙️ Qualities: ")
	for i, q := range profile.Qualities {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(q))
	}
	b.WriteString("\n📦 Containers: ")
	for i, f := range profile.Formats {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(f))
	}
	return b.String()
}

/* ---------------------- quota keys (shared shape with worker) ---------------------- */

func keyQuota(user int64, ymd string) string {
	return fmt.Sprintf("quota:%d:%s", user, ymd)
}

func today() string { return time.Now().Format("20060102") }
