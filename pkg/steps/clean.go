package steps

import (
	"context"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/rotisserie/eris"

	"github.com/ngld/taskrun/pkg/taskgraph"
)

// Clean deletes files and directories. Missing paths are ignored.
type Clean struct {
	Base string
	// Paths are glob patterns relative to Base
	Paths []string
}

func (c *Clean) Describe() string {
	return "clean " + strings.Join(c.Paths, " ")
}

func (c *Clean) Execute(ctx context.Context) error {
	items, err := ResolvePatterns(c.Base, c.Paths)
	if err != nil {
		return err
	}

	var result error
	for _, item := range items {
		taskgraph.Log(ctx).Debug().
			Str("task", taskgraph.CurrentTask(ctx)).
			Str("path", item).
			Msgf("removing %s", item)

		err := os.RemoveAll(item)
		if err != nil && !eris.Is(err, os.ErrNotExist) {
			result = multierror.Append(result, eris.Wrapf(err, "could not delete %s", item))
		}
	}

	return result
}
