package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/colorstring"

	"github.com/ngld/taskrun/pkg/buildsys"
	"github.com/ngld/taskrun/pkg/taskgraph"
)

func colorizer(out io.Writer) colorstring.Colorize {
	return colorstring.Colorize{
		Colors:  colorstring.DefaultColors,
		Disable: !isTerminal(out),
		Reset:   true,
	}
}

// printSummary lists every step of the last run with its outcome and duration
func printSummary(out io.Writer, summary *taskgraph.Summary) {
	results := summary.Results()
	if len(results) == 0 {
		return
	}

	maxNameLen := 0
	for _, item := range results {
		if len(item.Name) > maxNameLen {
			maxNameLen = len(item.Name)
		}
	}

	buffer := strings.Builder{}
	lineFmt := fmt.Sprintf("%%s %%-%ds %%s\n", maxNameLen)
	for _, item := range results {
		status := "[green]  ok[reset]"
		if !item.Success {
			status = "[red]FAIL[reset]"
		}

		buffer.WriteString(fmt.Sprintf(lineFmt, status, item.Name, item.Duration.Round(time.Millisecond)))
	}

	failed := summary.Failed()
	if failed > 0 {
		buffer.WriteString(fmt.Sprintf("[red][bold]%d of %d steps failed\n", failed, len(results)))
	} else {
		buffer.WriteString(fmt.Sprintf("[green][bold]%d steps finished\n", len(results)))
	}

	colors := colorizer(out)
	fmt.Fprint(out, colors.Color(buffer.String()))
}

// printTaskList lists the visible tasks and the script's options
func printTaskList(out io.Writer, tasks buildsys.TaskList, options map[string]buildsys.ScriptOption) {
	fmt.Fprintln(out, "Available tasks:")

	maxNameLen := 0
	names := make([]string, 0, len(tasks))
	for _, name := range tasks.Names() {
		if tasks[name].Hidden {
			continue
		}

		if len(name) > maxNameLen {
			maxNameLen = len(name)
		}
		names = append(names, name)
	}

	lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
	for _, name := range names {
		fmt.Fprintf(out, lineFmt, name+":", tasks[name].Desc)
	}

	if len(options) == 0 {
		return
	}

	optionNames := make([]string, 0, len(options))
	for name := range options {
		optionNames = append(optionNames, name)
	}
	sort.Strings(optionNames)

	fmt.Fprintln(out, "\nOptions (pass as name=value):")
	for _, name := range optionNames {
		opt := options[name]
		fmt.Fprintf(out, " * %s (default: %q) %s\n", name, opt.DefaultValue, opt.Help)
	}
}
