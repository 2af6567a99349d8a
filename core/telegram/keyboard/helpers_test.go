package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuickCommands(t *testing.T) {
	assert.Nil(t, QuickCommands(nil))

	m := QuickCommands([]string{"/balance", "/help"})
	require.NotNil(t, m)
	assert.True(t, m.OneTimeKeyboard && m.ResizeKeyboard && m.Selective)
	require.Len(t, m.ReplyKeyboard, 1)
	require.Len(t, m.ReplyKeyboard[0], 2)
	assert.Equal(t, "/balance", m.ReplyKeyboard[0][0].Text)
	assert.Equal(t, "/help", m.ReplyKeyboard[0][1].Text)
}

func TestQuickCommandsWraps(t *testing.T) {
	m := QuickCommands([]string{"/a", "/b", "/c", "/d"})
	require.Len(t, m.ReplyKeyboard, 2)
	assert.Len(t, m.ReplyKeyboard[0], 3)
	assert.Equal(t, "/d", m.ReplyKeyboard[1][0].Text)
}
