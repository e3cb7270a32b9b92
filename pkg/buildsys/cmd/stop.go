package cmd

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ngld/taskrun/pkg/pidfile"
)

var StopCmd = &cobra.Command{
	Use:   "stop [pidfile]",
	Short: "Stops the background process started by a serve() step",
	Long: `This command terminates the process recorded in the pid file (configured through pid_file,
relative to the task script) and removes the file.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProject(cmd)
		if err != nil {
			return err
		}

		path := p.resolve(p.cfg.PidFile)
		if len(args) > 0 {
			path = p.resolve(args[0])
		}

		file := pidfile.New(path)
		// Stop reports missing and malformed records itself
		pid, _ := file.Read()
		err = file.Stop()
		if err != nil {
			return eris.Wrap(err, "failed to stop the background process")
		}

		p.logger.Info().Str("path", path).Int("pid", pid).Msg("stopped background process")
		return nil
	},
}

func init() {
	addProjectFlags(StopCmd)
}
