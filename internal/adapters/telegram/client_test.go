package telegram

import (
	"StudentVerify/internal/core/ports"
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	sent      []tgbotapi.Chattable
	requested []tgbotapi.Chattable
	err       error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, f.err
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requested = append(f.requested, c)
	return &tgbotapi.APIResponse{Ok: f.err == nil}, f.err
}

func TestClient_SendMessageWithButtons(t *testing.T) {
	logger := zerolog.Nop()
	api := &fakeAPI{}
	c := newClient(api, &logger)

	err := c.SendMessage(context.Background(), ports.SendMessageParams{
		ChatID:    -100,
		Text:      "review me",
		ParseMode: "MarkdownV2",
		ReplyMarkup: &ports.ReplyMarkup{Buttons: [][]ports.Button{{
			{Text: "Approve", Data: "review_approve_x"},
			{Text: "Open", URL: "https://example.com"},
		}}},
	})
	require.NoError(t, err)
	require.Len(t, api.sent, 1)

	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(-100), msg.ChatID)
	assert.Equal(t, "MarkdownV2", msg.ParseMode)

	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 1)
	require.Len(t, kb.InlineKeyboard[0], 2)
	assert.Equal(t, "review_approve_x", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "https://example.com", *kb.InlineKeyboard[0][1].URL)
}

func TestClient_EditWithoutMarkupDropsButtons(t *testing.T) {
	logger := zerolog.Nop()
	api := &fakeAPI{}
	c := newClient(api, &logger)

	require.NoError(t, c.EditMessageText(context.Background(), ports.EditMessageParams{
		ChatID: 1, MessageID: 7, Text: "done",
	}))

	edit, ok := api.sent[0].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, 7, edit.MessageID)
	assert.Nil(t, edit.ReplyMarkup)
}

func TestClient_AnswerCallbackPropagatesError(t *testing.T) {
	logger := zerolog.Nop()
	api := &fakeAPI{err: errors.New("bad request")}
	c := newClient(api, &logger)

	err := c.AnswerCallbackQuery(context.Background(), ports.AnswerCallbackParams{CallbackQueryID: "q1", Text: "ok", ShowAlert: true})
	require.Error(t, err)

	cb, ok := api.requested[0].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.Equal(t, "q1", cb.CallbackQueryID)
	assert.True(t, cb.ShowAlert)
}
