package version

import (
	"fmt"
	"log"
	"strings"

	"github.com/vasilev-labs/scrapecore/theme"
)

var (
	Name        = "scrapecore"
	Authors     = "Scrapecore contributors"
	Description = "Resilient scraping pipeline for Bulgarian real-estate listings"
	Version     = "v0.0.1"
	Commit      = "none"
	Date        = "nowish"
	User        = "local"
)

const (
	GithubHomeText  = "github.com/vasilev-labs/scrapecore"
	GithubHomeUri   = "https://github.com/vasilev-labs/scrapecore"
	GithubLatestUri = "https://github.com/vasilev-labs/scrapecore/releases/latest"
)

// PrintVersionInfo writes a one-line (or, with extendedInfo, multi-line)
// banner identifying the build. Kept deliberately plain - unlike a TUI
// dashboard, this only ever runs once at startup.
func PrintVersionInfo(extendedInfo bool, vlog *log.Logger) {
	githubUri := theme.Hyperlink(GithubHomeUri, GithubHomeText)
	latestUri := theme.Hyperlink(GithubLatestUri, Version)

	var b strings.Builder
	b.WriteString(theme.ColourSplash(fmt.Sprintf("%s %s", Name, Description)))
	b.WriteString(" - ")
	b.WriteString(theme.StyleUrl(githubUri))
	b.WriteString(" ")
	b.WriteString(theme.ColourVersion(latestUri))

	if extendedInfo {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf(" Commit: %s\n", Commit))
		b.WriteString(fmt.Sprintf("  Built: %s\n", Date))
		b.WriteString(fmt.Sprintf("  Using: %s\n", User))
	}

	vlog.Println(b.String())
}
