package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/codeatlas/internal/pipeline"
)

// Result rendering styles. Plain output when stdout is not a TTY so
// pipes and CI logs stay clean.
var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	pathStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	scoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	signalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("135"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// renderResults prints search results, styled on TTYs.
func renderResults(w io.Writer, query string, resp *pipeline.Response) {
	styled := isTerminal(w)

	style := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}

	fmt.Fprintf(w, "%s\n\n", style(headerStyle, fmt.Sprintf("%d result(s) for %q", len(resp.Results), query)))

	for i, r := range resp.Results {
		fmt.Fprintf(w, "%2d. %s  %s\n", i+1,
			style(headerStyle, r.QualifiedName),
			style(signalStyle, "["+strings.Join(r.MatchSignals, ",")+"]"))
		fmt.Fprintf(w, "    %s:%d-%d  %s  %s\n",
			style(pathStyle, r.FilePath), r.StartLine, r.EndLine,
			style(dimStyle, string(r.Kind)),
			style(scoreStyle, fmt.Sprintf("score=%.5f", r.Score)))

		if r.Snippet != "" {
			first := strings.SplitN(r.Snippet, "\n", 2)[0]
			fmt.Fprintf(w, "    %s\n", style(dimStyle, first))
		}

		if len(r.RelatedSymbols) > 0 {
			names := make([]string, 0, len(r.RelatedSymbols))
			for _, rel := range r.RelatedSymbols {
				names = append(names, rel.Name)
			}
			if len(names) > 5 {
				names = names[:5]
			}
			fmt.Fprintf(w, "    related: %s\n", style(dimStyle, strings.Join(names, ", ")))
		}
		fmt.Fprintln(w)
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
