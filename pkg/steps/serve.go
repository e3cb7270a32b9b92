package steps

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ngld/taskrun/pkg/pidfile"
	"github.com/ngld/taskrun/pkg/taskgraph"
)

// Serve starts a long-lived process (i.e. a test server in watch mode) and records its process id in PidFile
// until it exits. A process terminated through StopServe (or pidfile.File.Stop) counts as success.
type Serve struct {
	Args    []string
	Dir     string
	Env     map[string]string
	PidFile string
}

func (s *Serve) Describe() string {
	return "serve " + strings.Join(s.Args, " ") + " (pid in " + s.PidFile + ")"
}

func (s *Serve) Execute(ctx context.Context) error {
	if len(s.Args) == 0 {
		return eris.New("empty command")
	}

	record := pidfile.New(s.PidFile)
	cmd := (&Command{Args: s.Args, Dir: s.Dir, Env: s.Env, Inherit: true}).build(ctx)
	if err := cmd.Start(); err != nil {
		return eris.Wrapf(err, "failed to start %s", s.Args[0])
	}

	pid := cmd.Process.Pid
	logger := taskgraph.Log(ctx)
	logger.Info().
		Str("task", taskgraph.CurrentTask(ctx)).
		Str("path", s.PidFile).
		Int("pid", pid).
		Msgf("started %s as process %d", s.Args[0], pid)

	if err := record.Record(pid); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return err
	}

	waitErr := cmd.Wait()

	// a missing record means somebody asked us to stop
	recorded, readErr := record.Read()
	if readErr != nil || recorded != pid {
		logger.Info().Str("task", taskgraph.CurrentTask(ctx)).Int("pid", pid).Msg("server stopped")
		return nil
	}

	if err := record.Clear(); err != nil {
		logger.Warn().Err(err).Str("task", taskgraph.CurrentTask(ctx)).Msg("failed to remove pid file")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if waitErr != nil {
		return exitError(s.Args[0], waitErr)
	}

	return nil
}

// StopServe terminates the process recorded in PidFile
type StopServe struct {
	PidFile string
}

func (s *StopServe) Describe() string {
	return "stop server recorded in " + s.PidFile
}

func (s *StopServe) Execute(ctx context.Context) error {
	return pidfile.New(s.PidFile).Stop()
}
