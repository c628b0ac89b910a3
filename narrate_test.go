package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/mafia/models"
	"github.com/wfunc/mafia/state"
)

// noShuffle 牌序固定：Ann 黑手党，Ben 侦探，Cat 医生，Dan 村民
type noShuffle struct{}

func (noShuffle) Shuffle(int, func(i, j int)) {}

func TestRunNarration(t *testing.T) {
	script := []string{
		// 身份揭示，每人两次回车
		"", "", "", "", "", "", "", "",
		// 夜晚：Ann 选 Dan，Ben 先输错再查 Ann，Cat 保护 Ben
		"3", "x", "1", "2",
		// 白天
		"",
		// 投票：所有人投 Ann
		"1", "1", "1",
	}
	var out bytes.Buffer
	err := runNarration(strings.NewReader(strings.Join(script, "\n")+"\n"), &out,
		[]string{"Ann", "Ben", "Cat", "Dan"}, models.DefaultRoleConfig(), state.WithShuffler(noShuffle{}))
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Ann, you are Mafia.")
	assert.Contains(t, text, `invalid choice "x"`)
	assert.Contains(t, text, "Dan was killed in the night.")
	assert.Contains(t, text, "[detective only] Ann is mafia.")
	assert.Contains(t, text, "Ann was voted out.")
	assert.Contains(t, text, "Game over: town wins after 1 rounds.")
}

func TestRunNarration_EndOfInput(t *testing.T) {
	err := runNarration(strings.NewReader("\n"), io.Discard,
		[]string{"Ann", "Ben", "Cat"}, models.DefaultRoleConfig())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestRunGenerator(t *testing.T) {
	var out bytes.Buffer
	err := runGenerator(strings.NewReader(strings.Repeat("\n", 6)), &out,
		[]string{"Ann", "Ben", "Cat"}, models.RoleConfig{Mafia: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out.String(), "you are Mafia"))
	assert.Contains(t, out.String(), "All roles dealt.")

	err = runGenerator(strings.NewReader(""), io.Discard, []string{"Ann"}, models.RoleConfig{})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
}
