// Package handlers contains the Telegram intake handler that turns user messages into
// priority items, its middleware and registration, and the health endpoint.
package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// HumansOnly stops updates that carry no message, no sender, or a bot sender. Bots
// read each other through the store, never through intake.
func HumansOnly(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			msg := update.Message
			if msg == nil || msg.From == nil {
				return
			}
			if msg.From.IsBot {
				deps.Logger.With("middleware", "HumansOnly").DebugContext(ctx, "Ignoring bot-authored update",
					"update_id", update.ID, "chat_id", msg.Chat.ID, "user_id", msg.From.ID)
				return
			}
			next(ctx, bot, update)
		}
	}
}
