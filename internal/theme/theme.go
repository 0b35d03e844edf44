package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange  = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for section headers in command output.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// PanelStyle wraps a block of key/value lines.
var PanelStyle = lipgloss.NewStyle().
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// LabelStyle renders the key column of a panel.
var LabelStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Width(14)

// HelpStyle is used for hints and secondary text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// ActionStyle returns a color-coded style for a routing action.
func ActionStyle(action string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Width(13)

	switch action {
	case "flag":
		return base.Foreground(ColorRed)
	case "category":
		return base.Foreground(ColorMagenta)
	case "leave_unread":
		return base.Foreground(ColorBlue)
	case "archive":
		return base.Foreground(ColorGreen)
	case "junk":
		return base.Foreground(ColorOrange)
	case "notifications":
		return base.Foreground(ColorYellow)
	default:
		return base.Foreground(ColorGray)
	}
}

// RatingStyle returns a color-coded style for a 0-10 rating.
func RatingStyle(rating int) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch {
	case rating >= 7:
		return base.Foreground(ColorRed)
	case rating >= 4:
		return base.Foreground(ColorYellow)
	case rating >= 1:
		return base.Foreground(ColorGreen)
	default:
		return base.Foreground(ColorGray)
	}
}

// HealthStyle returns a style for a health status name.
func HealthStyle(status string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch status {
	case "Healthy", "ok":
		return base.Foreground(ColorGreen)
	case "Degraded":
		return base.Foreground(ColorYellow)
	default:
		return base.Foreground(ColorRed)
	}
}
