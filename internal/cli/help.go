package cli

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
)

// Custom help styles
var (
	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#A40000")).
			MarginBottom(1)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Italic(true).
			MarginBottom(1)

	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FFA500")).
				MarginTop(1)

	helpFlagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AA00")).
			Bold(true)

	helpArgStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AAAA")).
			Bold(true)

	helpDefaultStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#888888")).
				Italic(true)
)

// StyledHelpPrinter creates a help printer with Lipgloss styling. It describes
// the selected command, or the whole application when none is selected.
func StyledHelpPrinter(options kong.HelpOptions) func(options kong.HelpOptions, ctx *kong.Context) error {
	return func(options kong.HelpOptions, ctx *kong.Context) error {
		var sb strings.Builder

		node := ctx.Selected()
		if node == nil {
			node = ctx.Model.Node
		}

		sb.WriteString(helpTitleStyle.Render("Bang 🥁"))
		sb.WriteString("\n")
		desc := node.Help
		if desc == "" {
			desc = ctx.Model.Help
		}
		if desc != "" {
			sb.WriteString(helpDescStyle.Render(desc))
			sb.WriteString("\n")
		}

		sb.WriteString(helpSectionStyle.Render("Usage:"))
		sb.WriteString("\n  ")
		sb.WriteString(usageLine(ctx.Model.Name, node))
		sb.WriteString("\n")

		writeEntries(&sb, "Commands:", getCommands(node), helpArgStyle)
		writeEntries(&sb, "Arguments:", getArguments(node), helpArgStyle)
		writeEntries(&sb, "Flags:", getFlags(node), helpFlagStyle)

		sb.WriteString("\n")
		fmt.Fprint(ctx.Stdout, sb.String())
		return nil
	}
}

// entry is one line of a help section
type entry struct {
	name       string
	help       string
	defaultVal string
}

func writeEntries(sb *strings.Builder, title string, entries []entry, style lipgloss.Style) {
	if len(entries) == 0 {
		return
	}
	width := 0
	for _, e := range entries {
		width = max(width, lipgloss.Width(e.name))
	}

	sb.WriteString("\n")
	sb.WriteString(helpSectionStyle.Render(title))
	sb.WriteString("\n")
	for _, e := range entries {
		sb.WriteString("  ")
		sb.WriteString(style.Render(e.name))
		if e.help != "" {
			sb.WriteString(strings.Repeat(" ", width-lipgloss.Width(e.name)+2))
			sb.WriteString(e.help)
		}
		if e.defaultVal != "" {
			sb.WriteString(" ")
			sb.WriteString(helpDefaultStyle.Render("(default: " + e.defaultVal + ")"))
		}
		sb.WriteString("\n")
	}
}

func usageLine(app string, node *kong.Node) string {
	parts := []string{app}
	if node.Type == kong.CommandNode {
		parts = append(parts, node.Path())
	}
	parts = append(parts, "[flags]")

	if len(visibleChildren(node)) > 0 {
		parts = append(parts, "<command>")
	}
	for _, arg := range node.Positional {
		parts = append(parts, arg.Summary())
	}
	return strings.Join(parts, " ")
}

func visibleChildren(node *kong.Node) []*kong.Node {
	var out []*kong.Node
	for _, child := range node.Children {
		if !child.Hidden {
			out = append(out, child)
		}
	}
	return out
}

func getCommands(node *kong.Node) []entry {
	var cmds []entry
	for _, child := range visibleChildren(node) {
		name := child.Name
		for _, arg := range child.Positional {
			name += " " + arg.Summary()
		}
		cmds = append(cmds, entry{name: name, help: child.Help})
	}
	return cmds
}

func getArguments(node *kong.Node) []entry {
	var args []entry
	for _, arg := range node.Positional {
		args = append(args, entry{name: arg.Summary(), help: arg.Help})
	}
	return args
}

// getFlags lists inherited flags before the node's own, with help first.
func getFlags(node *kong.Node) []entry {
	flags := []entry{{name: "-h, --help", help: "Show context-sensitive help."}}

	seen := map[string]bool{"help": true}
	for _, group := range node.AllFlags(true) {
		for _, f := range group {
			if seen[f.Name] {
				continue
			}
			seen[f.Name] = true

			name := "--" + f.Name
			if f.Short != 0 {
				name = fmt.Sprintf("-%c, --%s", f.Short, f.Name)
			}
			if !f.IsBool() {
				name += "=" + f.FormatPlaceHolder()
			}

			flags = append(flags, entry{
				name:       name,
				help:       f.Help,
				defaultVal: f.Default,
			})
		}
	}
	return flags
}
