// Package cmd implements the CLI commands that operate on task scripts
package cmd

import (
	"context"
	"errors"
	"os"
	"syscall"

	"github.com/oklog/run"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ngld/taskrun/pkg/buildsys"
	"github.com/ngld/taskrun/pkg/taskgraph"
	"github.com/ngld/taskrun/pkg/watch"
)

// watchRoot is the hidden task used to watch more than one task at a time
const watchRoot = "watch#root"

var RunCmd = &cobra.Command{
	Use:   "run [task...] [option=value...]",
	Short: "Runs tasks from the nearest tasks.star",
	Long: `This command parses the first tasks.star file it finds (starting in the working directory) and executes
the given tasks one after another. Arguments containing a = override the script's options.
Without any tasks, the available tasks are listed.`,
	SilenceUsage: true,
	RunE:         runTasks,
}

func init() {
	addProjectFlags(RunCmd)
	RunCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	RunCmd.Flags().BoolP("force", "f", false, "force build; always execute the passed steps even if they don't have to run")
	RunCmd.Flags().BoolP("watch", "w", false, "run the tasks again whenever a file in the project changes")
	RunCmd.Flags().IntP("jobs", "j", -1, "how many steps may run at the same time (overrides the config)")
	RunCmd.Flags().Bool("no-cache", false, "always evaluate the task script")
	RunCmd.Flags().Bool("progress", false, "show a progress spinner")
	RunCmd.Flags().Bool("cancel-on-failure", false, "cancel running steps as soon as one fails")
}

type runFlags struct {
	dry             bool
	force           bool
	watch           bool
	jobs            int
	noCache         bool
	progress        bool
	cancelOnFailure bool
}

func getRunFlags(cmd *cobra.Command) (runFlags, error) {
	var result runFlags
	var err error
	flags := cmd.Flags()

	for name, target := range map[string]*bool{
		"dry":               &result.dry,
		"force":             &result.force,
		"watch":             &result.watch,
		"no-cache":          &result.noCache,
		"progress":          &result.progress,
		"cancel-on-failure": &result.cancelOnFailure,
	} {
		*target, err = flags.GetBool(name)
		if err != nil {
			return result, err
		}
	}

	result.jobs, err = flags.GetInt("jobs")
	return result, err
}

func runTasks(cmd *cobra.Command, args []string) error {
	flags, err := getRunFlags(cmd)
	if err != nil {
		return err
	}

	taskArgs, options := SplitArgs(args)
	p, err := openProject(cmd)
	if err != nil {
		return err
	}

	taskList, scriptOptions, err := p.loadTasks(options, !flags.noCache)
	if err != nil {
		return eris.Wrap(err, "failed to parse tasks")
	}

	if len(taskArgs) == 0 {
		printTaskList(cmd.OutOrStdout(), taskList, scriptOptions)
		return nil
	}

	reg := taskgraph.NewRegistry()
	err = buildsys.Register(reg, taskList, buildsys.RunOptions{
		DryRun: flags.dry,
		Force:  flags.force,
	})
	if err != nil {
		return err
	}

	jobs := p.cfg.Jobs
	if flags.jobs >= 0 {
		jobs = flags.jobs
	}

	summary := taskgraph.NewSummary()
	observers := []taskgraph.Observer{summary}

	var progress *progressObserver
	if flags.progress && !flags.watch {
		progress = newProgressObserver(cmd.ErrOrStderr())
		observers = append(observers, progress)
	}

	executor, err := taskgraph.NewExecutor(taskgraph.ExecutorConfig{
		Registry:        reg,
		Workers:         jobs,
		CancelOnFailure: flags.cancelOnFailure,
		Observers:       observers,
	})
	if err != nil {
		return err
	}

	if flags.watch {
		return watchTasks(p, executor, taskArgs)
	}

	err = runOnce(p.ctx, executor, taskArgs)
	if progress != nil {
		progress.Finish()
	}

	printSummary(cmd.ErrOrStderr(), summary)
	return err
}

// runOnce runs the given tasks in order until they're done or the process receives a termination signal
func runOnce(ctx context.Context, executor *taskgraph.Executor, names []string) error {
	var g run.Group

	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				if len(names) == 1 {
					return executor.Run(ctx, names[0])
				}
				return executor.RunSequence(ctx, names...)
			},
			func(error) {
				cancel()
			},
		)
	}

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	return g.Run()
}

// watchTasks runs the given tasks and reruns them whenever files in the project change
func watchTasks(p *project, executor *taskgraph.Executor, names []string) error {
	root := names[0]
	if len(names) > 1 {
		root = watchRoot
		err := executor.Registry().Add(&taskgraph.Task{
			Name:   root,
			Hidden: true,
			Step:   taskgraph.SequenceStep{Tasks: names},
		})
		if err != nil {
			return err
		}
	}

	source, err := watch.New(watch.Config{
		Root:    p.root,
		Include: p.cfg.Watch.Include,
		Exclude: p.cfg.Watch.Exclude,
		Lull:    p.cfg.WatchLull(),
	})
	if err != nil {
		return err
	}
	defer source.Close()

	var g run.Group

	{
		ctx, cancel := context.WithCancel(p.ctx)
		defer cancel()

		g.Add(
			func() error {
				return executor.Watch(ctx, root, source)
			},
			func(error) {
				cancel()
				source.Close()
			},
		)
	}

	g.Add(run.SignalHandler(p.ctx, os.Interrupt, syscall.SIGTERM))

	err = g.Run()
	if errors.Is(err, run.ErrSignal) {
		p.logger.Info().Msg("stopped watching")
		return nil
	}

	return err
}
