package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const fieldCharLimit = 128

// form 是一组单行输入框，focus 为 -1 表示未在编辑。
type form struct {
	labels []string
	inputs []textinput.Model
	focus  int
}

func newForm(labels ...string) form {
	inputs := make([]textinput.Model, 0, len(labels))
	for range labels {
		inp := textinput.New()
		inp.Prompt = ""
		inp.CharLimit = fieldCharLimit
		// 光标不闪烁，避免后台 tick 一直唤醒 Update。
		inp.Cursor.SetMode(cursor.CursorStatic)
		inputs = append(inputs, inp)
	}
	return form{labels: labels, inputs: inputs, focus: -1}
}

// mask 把第 i 个输入框设为密码模式。
func (f *form) mask(i int) {
	f.inputs[i].EchoMode = textinput.EchoPassword
	f.inputs[i].EchoCharacter = '•'
}

func (f *form) editing() bool {
	return f.focus >= 0
}

func (f *form) focusAt(i int) tea.Cmd {
	if i < 0 || i >= len(f.inputs) {
		return nil
	}
	if f.editing() {
		f.inputs[f.focus].Blur()
	}
	f.focus = i
	return f.inputs[i].Focus()
}

func (f *form) blur() {
	if f.editing() {
		f.inputs[f.focus].Blur()
	}
	f.focus = -1
}

func (f *form) clear() {
	f.blur()
	for i := range f.inputs {
		f.inputs[i].Reset()
	}
}

func (f *form) value(i int) string {
	return strings.TrimSpace(f.inputs[i].Value())
}

// missing 返回第一个为空的字段下标，全部填写时返回 -1。
func (f *form) missing() int {
	for i := range f.inputs {
		if f.value(i) == "" {
			return i
		}
	}
	return -1
}

// formAction 是输入框处理按键后的结果。
type formAction int

const (
	formNone formAction = iota
	formSubmit
)

// update 处理切换焦点和提交，其余按键交给当前输入框。
func (f *form) update(msg tea.KeyMsg, keys formKeyMap) (formAction, tea.Cmd) {
	n := len(f.inputs)
	switch {
	case key.Matches(msg, keys.Blur):
		f.blur()
		return formNone, nil
	case key.Matches(msg, keys.Next):
		return formNone, f.focusAt((f.focus + 1) % n)
	case key.Matches(msg, keys.Prev):
		return formNone, f.focusAt((f.focus - 1 + n) % n)
	case key.Matches(msg, keys.Submit):
		return formSubmit, nil
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return formNone, cmd
}

func (f form) render(width int) string {
	fieldWidth := max(20, min(width-4, 48))
	var b strings.Builder
	for i, label := range f.labels {
		inp := f.inputs[i]
		inp.Width = fieldWidth - 4
		style := blurredField
		if i == f.focus {
			style = focusedField
		}
		b.WriteString(mutedStyle.Render(label))
		b.WriteString("\n")
		b.WriteString(style.Width(fieldWidth).Render(inp.View()))
		b.WriteString("\n")
	}
	return b.String()
}
