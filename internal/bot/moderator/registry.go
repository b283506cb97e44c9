package moderator

import (
	"StudentVerify/internal/core/ports"

	"github.com/rs/zerolog"
)

// CallbackHandlerConstructor builds a handler from the bot's dependencies.
type CallbackHandlerConstructor func(
	decider Decider,
	botClient ports.BotClientPort,
	baseLogger *zerolog.Logger,
) ports.CallbackHandler

var callbackRegistry []CallbackHandlerConstructor

// RegisterCallback is called by handlers in their init() function.
func RegisterCallback(constructor CallbackHandlerConstructor) {
	callbackRegistry = append(callbackRegistry, constructor)
}

// RegisterAllHandlers instantiates every registered handler on router.
func RegisterAllHandlers(
	router *ModeratorRouter,
	decider Decider,
	botClient ports.BotClientPort,
	baseLogger *zerolog.Logger,
) {
	for _, constructor := range callbackRegistry {
		router.RegisterCallbackHandler(constructor(decider, botClient, baseLogger))
	}
}
