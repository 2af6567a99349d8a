// Package keyboard renders quick command suggestions as Telegram reply keyboards.
package keyboard

import tele "gopkg.in/telebot.v4"

// maxRow keeps buttons readable on narrow phone screens.
const maxRow = 3

// QuickCommands lays the commands out as a one-time reply keyboard, at most
// maxRow buttons per row. It returns nil when there is nothing to offer.
func QuickCommands(commands []string) *tele.ReplyMarkup {
	if len(commands) == 0 {
		return nil
	}
	m := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true, Selective: true}
	var rows []tele.Row
	for len(commands) > 0 {
		n := min(maxRow, len(commands))
		row := make(tele.Row, 0, n)
		for _, cmd := range commands[:n] {
			row = append(row, m.Text(cmd))
		}
		rows = append(rows, row)
		commands = commands[n:]
	}
	m.Reply(rows...)
	return m
}
