package cmd

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var ListCmd = &cobra.Command{
	Use:          "list [option=value...]",
	Short:        "Lists the tasks and options declared by the nearest tasks.star",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		taskArgs, options := SplitArgs(args)
		if len(taskArgs) > 0 {
			return eris.Errorf("unexpected arguments %v, only option=value pairs are accepted", taskArgs)
		}

		p, err := openProject(cmd)
		if err != nil {
			return err
		}

		noCache, err := cmd.Flags().GetBool("no-cache")
		if err != nil {
			return err
		}

		taskList, scriptOptions, err := p.loadTasks(options, !noCache)
		if err != nil {
			return eris.Wrap(err, "failed to parse tasks")
		}

		printTaskList(cmd.OutOrStdout(), taskList, scriptOptions)
		return nil
	},
}

func init() {
	addProjectFlags(ListCmd)
	ListCmd.Flags().Bool("no-cache", false, "always evaluate the task script")
}
