package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler is an update handler with its match rule and middleware.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllHandlers returns the listener's handlers keyed by name. The intake
// handler matches every text message; the empty prefix matches anything.
func RegisterAllHandlers(deps HandlerDeps) map[string]RegisteredHandler {
	return map[string]RegisteredHandler{
		"intake": {
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     "",
			Handler:     NewIntakeHandler(deps),
			MatchType:   tgbot.MatchTypePrefix,
			Middleware:  []tgbot.Middleware{HumansOnly(deps)},
		},
	}
}
