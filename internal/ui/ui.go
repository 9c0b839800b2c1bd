package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/qlinetech/qcode/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
	PromptColor  = color.New(color.FgMagenta)
)

// Output is where all console helpers write. Tests swap it.
var Output io.Writer = os.Stderr

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(Output, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(Output, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(Output, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(Output, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(Output, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(Output, "  "+format+"\n", a...)
}

func Prompt(format string, a ...interface{}) string {
	return PromptColor.Sprintf(format, a...)
}

// --- Summaries ---

// PrintSummary writes a plain, non-interactive version of a summary.
// It is used when the TUI is disabled.
func PrintSummary(title string, s model.Summary) {
	Header("\n--- %s ---", title)
	if s.Message != "" {
		Info(s.Message)
	}
	if len(s.Created)+len(s.Modified)+len(s.Deleted)+len(s.Failed) == 0 {
		if s.Message == "" {
			Info("No files were updated.")
		}
		return
	}
	printGroup(SuccessColor, "Created %d file(s):", s.Created)
	printGroup(SuccessColor, "Modified %d file(s):", s.Modified)
	printGroup(SuccessColor, "Deleted %d file(s):", s.Deleted)
	printGroup(ErrorColor, "Failed to process %d file(s):", s.Failed)
}

func printGroup(c *color.Color, format string, files []string) {
	if len(files) == 0 {
		return
	}
	c.Fprintf(Output, format+"\n", len(files))
	for _, f := range files {
		fmt.Fprintf(Output, "  - %s\n", f)
	}
}
