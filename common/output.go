package common

import (
	"fmt"
	"io"
	"os"

	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"
)

type ICommandResult interface {
	GetOutput() string
}

// CliCommandExecutor is implemented by command params objects: flags are
// validated in PreRunE, Execute does the work.
type CliCommandExecutor interface {
	Execute(outputter *OutputFormatter) (ICommandResult, error)
}

type OutputFormatter struct {
	commandResult ICommandResult
	errorResult   error

	writer      io.Writer
	errorWriter io.Writer
}

func InitializeOutputter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		writer:      cmd.OutOrStdout(),
		errorWriter: cmd.ErrOrStderr(),
	}
}

func (o *OutputFormatter) SetError(err error) {
	o.errorResult = err
}

func (o *OutputFormatter) SetCommandResult(result ICommandResult) {
	o.commandResult = result
}

func (o *OutputFormatter) WriteOutput() {
	if o.errorResult != nil {
		_, _ = fmt.Fprintln(o.errorWriter, "Error:", o.errorResult)

		os.Exit(1)
	}

	if o.commandResult != nil {
		_, _ = fmt.Fprintln(o.writer, o.commandResult.GetOutput())
	}
}

func GetCliRunCommand(executor CliCommandExecutor) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, _ []string) {
		outputter := InitializeOutputter(cmd)
		defer outputter.WriteOutput()

		result, err := executor.Execute(outputter)
		if err != nil {
			outputter.SetError(err)

			return
		}

		outputter.SetCommandResult(result)
	}
}

// FormatKV formats key value pairs, one `key|value` string per row.
func FormatKV(in []string) string {
	columnConf := columnize.DefaultConfig()
	columnConf.Empty = "<none>"
	columnConf.Glue = " = "

	return columnize.Format(in, columnConf)
}

// FormatTable formats `|` delimited rows, first row being the header.
func FormatTable(rows []string) string {
	columnConf := columnize.DefaultConfig()
	columnConf.Empty = "<none>"

	return columnize.Format(rows, columnConf)
}
