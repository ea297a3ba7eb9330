// Package tui renders the save-confirmation prompt in a terminal.
package tui

import (
	"strings"

	"github.com/atinyakov/keeperbridge/internal/pageagent/detector"
	"github.com/atinyakov/keeperbridge/internal/pageagent/overlay"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	fieldSite = iota
	fieldUsername
	fieldPassword
	fieldCount
)

var fieldLabels = [fieldCount]string{"Site", "Username", "Password"}

// promptModel is the bubbletea model of one save prompt.
type promptModel struct {
	inputs   [fieldCount]textinput.Model
	focus    int
	decision overlay.Decision
	answered bool
}

func newPromptModel(c detector.Candidate) promptModel {
	var m promptModel
	values := [fieldCount]string{c.Site, c.Username, c.Password}
	for i := range m.inputs {
		in := textinput.New()
		in.Prompt = ""
		in.CharLimit = 256
		in.SetValue(values[i])
		if i == fieldPassword {
			in.EchoMode = textinput.EchoPassword
			in.EchoCharacter = '•'
		}
		m.inputs[i] = in
	}
	m.inputs[fieldSite].Focus()
	return m
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "ctrl+c", "esc":
		m.answered, m.decision = true, overlay.Decision{}
		return m, tea.Quit
	case "ctrl+s":
		return m.save()
	case "tab", "down":
		return m, m.move(1)
	case "shift+tab", "up":
		return m, m.move(-1)
	case "enter":
		if m.focus < fieldCount-1 {
			return m, m.move(1)
		}
		return m.save()
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m promptModel) save() (tea.Model, tea.Cmd) {
	m.answered = true
	m.decision = overlay.Decision{
		Save: true,
		Fields: overlay.Fields{
			Site:     m.inputs[fieldSite].Value(),
			Username: m.inputs[fieldUsername].Value(),
			Password: m.inputs[fieldPassword].Value(),
		},
	}
	return m, tea.Quit
}

func (m *promptModel) move(delta int) tea.Cmd {
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + delta + fieldCount) % fieldCount
	return m.inputs[m.focus].Focus()
}

func (m promptModel) View() string {
	if m.answered {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("KeeperBridge"))
	b.WriteString("\n")
	b.WriteString(messageStyle.Render("Save this password?"))
	b.WriteString("\n\n")
	for i, in := range m.inputs {
		label := labelStyle
		if i == m.focus {
			label = focusedLabelStyle
		}
		b.WriteString(label.Render(strings.ToUpper(fieldLabels[i])))
		b.WriteString("\n")
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("Enter: next/save • Ctrl+S: save • Esc: not now"))
	return boxStyle.Render(b.String())
}

func renderToast(t overlay.Toast) string {
	bg := success
	if t.Kind == overlay.ToastError {
		bg = failure
	}
	return toastBase.Background(bg).Render(t.Message)
}

var _ tea.Model = promptModel{}
