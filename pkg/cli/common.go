package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/modelget/rget/pkg/download"
)

const UsageTemplate = `
Usage:{{if .Runnable}}
{{if .HasAvailableFlags}}{{appendIfNotPresent .UseLine "[flags]"}}{{else}}{{.UseLine}}{{end}}{{end}}{{if .HasAvailableSubCommands}}
{{.CommandPath}} [command]{{end}}{{if gt .Aliases 0}}

Aliases:
{{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}

Available Commands:{{range .Commands}}{{if .IsAvailableCommand}}
{{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
{{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`

// ProgressPrinter writes progress lines. On a terminal each line replaces the
// previous one in place, otherwise every line is printed on its own.
type ProgressPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	inPlace bool
	lastLen int
}

// NewProgressPrinter prints to f, rewriting in place when f is a terminal.
func NewProgressPrinter(f *os.File) *ProgressPrinter {
	return NewProgressPrinterWriter(f, term.IsTerminal(int(f.Fd())))
}

func NewProgressPrinterWriter(out io.Writer, inPlace bool) *ProgressPrinter {
	return &ProgressPrinter{out: out, inPlace: inPlace}
}

func (p *ProgressPrinter) Print(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.inPlace {
		fmt.Fprintln(p.out, line)
		return
	}
	// Widths are in runes: the progress bar is drawn with multi-byte blocks.
	width := utf8.RuneCountInString(line)
	padding := ""
	if n := p.lastLen - width; n > 0 {
		padding = strings.Repeat(" ", n)
	}
	fmt.Fprintf(p.out, "\r%s%s", line, padding)
	p.lastLen = width
}

// Done ends an in-place line so later output starts on a fresh line.
func (p *ProgressPrinter) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inPlace && p.lastLen > 0 {
		fmt.Fprintln(p.out)
	}
	p.lastLen = 0
}

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow)
	failureColor = color.New(color.FgRed, color.Bold)
)

// PrintResult writes the outcome of one download. err takes precedence over
// result.
func PrintResult(out io.Writer, result download.Result, err error) {
	switch {
	case err != nil:
		failureColor.Fprint(out, "Download failed: ")
		fmt.Fprintln(out, err.Error())
	case result.Success:
		if result.Warning != nil {
			warningColor.Fprintf(out, "Warning: %s\n", result.Warning.Error())
		}
		successColor.Fprint(out, "File Downloaded to: ")
		fmt.Fprintln(out, result.Path)
	default:
		failureColor.Fprint(out, "Download failed: ")
		fmt.Fprintln(out, result.Message())
	}
}

// RequestFromArgs builds the request for `rget <url> [dest]`. dest names the
// file to write unless it is an existing directory or ends in a path
// separator, in which case it is the folder. Without dest the folder is
// outputDir. filename, when set, names the file inside the folder.
func RequestFromArgs(url, dest, outputDir, filename string) (download.Request, error) {
	req := download.Request{URL: url, Folder: outputDir, Filename: filename}
	if dest == "" {
		return req, nil
	}
	if strings.HasSuffix(dest, string(filepath.Separator)) || strings.HasSuffix(dest, "/") || isDir(dest) {
		req.Folder = dest
		return req, nil
	}
	if filename != "" {
		return download.Request{}, fmt.Errorf("destination %s is a file path, it cannot be combined with --filename", dest)
	}
	req.Path = dest
	return req, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
