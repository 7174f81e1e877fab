package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/suipack/cli/reader"
)

// InspectModel is a Bubble Tea model for inspect views.
type InspectModel struct {
	viewType string
	data     any
	cursor   int
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < m.moduleCount()-1 {
				m.cursor++
			}
		}
	}

	return m, nil
}

func (m InspectModel) moduleCount() int {
	if data, ok := m.data.(*reader.InspectPackageResponse); ok {
		return len(data.Modules)
	}
	return 0
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewInspectPackage:
		content = m.renderInspectPackage()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("↑/↓ select module • q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m InspectModel) renderInspectPackage() string {
	data, ok := m.data.(*reader.InspectPackageResponse)
	if !ok {
		return "Invalid data type for inspect_package"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Package Details"))
	b.WriteString("\n\n")

	rows := [][]string{
		{"Package ID", data.ID.String()},
		{"Version", fmt.Sprintf("%d", data.Version)},
		{"Dependencies", fmt.Sprintf("%d", data.Dependencies)},
	}
	if data.OriginalPackageID != nil {
		rows = append(rows, []string{"Original ID", data.OriginalPackageID.String()})
	}
	if data.Checkpoint != nil {
		rows = append(rows, []string{"Checkpoint", fmt.Sprintf("%d", *data.Checkpoint)})
		rows = append(rows, []string{"Transaction", data.TransactionDigest})
	}
	if data.Sender != nil {
		rows = append(rows, []string{"Sender", *data.Sender})
	}
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(row[0]+":"), ValueStyle.Render(row[1])))
	}

	metadata := "absent"
	if data.Checkpoint != nil {
		metadata = "present"
	}
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Metadata:"), StateStyle(metadata).Render(metadata)))
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Artifacts:"), ValueStyle.Render(fmt.Sprintf("%d files", len(data.Artifacts)))))

	header := BoxStyle.Render(b.String())
	return lipgloss.JoinVertical(lipgloss.Left, header, m.renderModules(data.Modules))
}

func (m InspectModel) renderModules(modules []reader.ModuleSummary) string {
	if len(modules) == 0 {
		return HelpStyle.Render("(no modules)")
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Modules"))
	b.WriteString("\n")
	for i, mod := range modules {
		line := fmt.Sprintf("%-24s fn %3d  public %3d  entry %3d  structs %3d",
			mod.Name, mod.Functions, mod.PublicFunctions, mod.EntryFunctions, mod.Structs)
		if i == m.cursor {
			b.WriteString(SelectedStyle.Render("> " + line))
		} else {
			b.WriteString(ValueStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}

	selected := modules[min(m.cursor, len(modules)-1)]
	caps := "none"
	if len(selected.Caps) > 0 {
		caps = strings.Join(selected.Caps, ", ")
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s", LabelStyle.Render("Caps in "+selected.Name+":"), WarningStyle.Render(caps)))
	return b.String()
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
	Up   key.Binding
	Down key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "previous module"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "next module"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
