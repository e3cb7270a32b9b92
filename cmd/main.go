// Package cmd contains taskrun's command line interface
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ngld/taskrun/pkg/buildsys/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "taskrun",
	Short: "Task graph runner for tasks.star scripts",
	Long: `taskrun runs the tasks declared in the nearest tasks.star file together with their prerequisites,
either once or whenever the project's files change. It also bundles the portable mv, rm and mkdir
commands that task snippets are routed to.`,
}

func init() {
	rootCmd.AddCommand(cmd.RunCmd)
	rootCmd.AddCommand(cmd.ListCmd)
	rootCmd.AddCommand(cmd.StopCmd)
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
