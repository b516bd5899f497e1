package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// BannerInfo is what the startup banner shows.
type BannerInfo struct {
	Version  string
	HTTPAddr string
	UDPAddr  string
	DBPath   string
	TLS      bool
	Sources  int
}

// Banner renders the startup summary.
func Banner(info BannerInfo) string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")

	transport := "HTTP"
	if info.TLS {
		transport = "HTTPS"
	}

	var lines []string
	lines = append(lines, "")
	lines = append(lines, cyan.Bold(true).Render("    magpie")+" "+dim.Render("v"+info.Version))
	lines = append(lines, dim.Render("    ─────────────────────────────"))
	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, fmt.Sprintf("    %s  %-12s %s", check, transport, cyan.Render(info.HTTPAddr)))
	lines = append(lines, fmt.Sprintf("    %s  %-12s %s", check, "UDP Ingest", cyan.Render(info.UDPAddr)))
	lines = append(lines, bold.Render("    Storage"))
	db := info.DBPath
	if db == "" {
		db = "in-memory"
	}
	lines = append(lines, fmt.Sprintf("    %s  %-12s %s", check, "Database", dim.Render(db)))
	if info.Sources > 0 {
		lines = append(lines, fmt.Sprintf("    %s  %-12s %s", check, "File Tails", dim.Render(fmt.Sprintf("%d registered", info.Sources))))
	}
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press Ctrl+C to stop"))
	lines = append(lines, "")

	return strings.Join(lines, "\n")
}
