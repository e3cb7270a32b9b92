package cmd

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/hashicorp/go-multierror"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

// Task snippets call these instead of the system's tools so that they behave the same everywhere (cmd.exe
// has neither of them).

var mvCmd = &cobra.Command{
	Use:    "mv <source>... <dest>",
	Short:  "Cross-platform implementation of the POSIX mv command",
	Hidden: true,
	Args:   cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return movePaths(args[:len(args)-1], args[len(args)-1])
	},
}

var rmCmd = &cobra.Command{
	Use:    "rm <path>...",
	Short:  "Cross-platform implementation of the POSIX rm command",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, err := cmd.Flags().GetBool("recursive")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		return removePaths(args, recursive, force)
	},
}

var mkdirCmd = &cobra.Command{
	Use:    "mkdir <path>...",
	Short:  "Cross-platform implementation of the POSIX mkdir command",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		parents, err := cmd.Flags().GetBool("parents")
		if err != nil {
			return err
		}

		return makeDirs(args, parents)
	},
}

func init() {
	rmCmd.Flags().BoolP("recursive", "r", false, "recursively delete directories")
	rmCmd.Flags().BoolP("force", "f", false, "ignore missing files")
	mkdirCmd.Flags().BoolP("parents", "p", false, "create parent directories as needed and don't fail on existing ones")

	rootCmd.AddCommand(mvCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(mkdirCmd)
}

// expandArgs resolves glob patterns on Windows since there's no shell doing it for us. A pattern without
// matches is an error unless allowEmpty is set.
func expandArgs(args []string, allowEmpty bool) ([]string, error) {
	if runtime.GOOS != "windows" {
		return args, nil
	}

	items := make([]string, 0, len(args))
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve pattern %s", arg)
		}

		if len(matches) == 0 && !allowEmpty {
			return nil, eris.Errorf("pattern %s produced no matches", arg)
		}

		items = append(items, matches...)
	}

	return items, nil
}

// movePaths moves sources into dest if it's a directory, otherwise renames the single source to dest
func movePaths(sources []string, dest string) error {
	dest = filepath.Clean(dest)
	destParent := filepath.Dir(dest)
	info, err := os.Stat(destParent)
	if err != nil {
		return eris.Wrapf(err, "could not find destination directory %s", destParent)
	}

	if !info.IsDir() {
		return eris.Errorf("%s is not a directory", destParent)
	}

	items, err := expandArgs(sources, false)
	if err != nil {
		return err
	}

	destIsDir := false
	info, err = os.Stat(dest)
	if err == nil {
		destIsDir = info.IsDir()
	} else if !eris.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "failed to retrieve info about destination %s", dest)
	}

	if len(items) > 1 && !destIsDir {
		return eris.Errorf("can't move multiple items to %s because it is not a directory", dest)
	}

	for _, item := range items {
		itemDest := dest
		if destIsDir {
			itemDest = filepath.Join(dest, filepath.Base(item))
		}

		err = os.Rename(item, itemDest)
		if err != nil {
			return eris.Wrapf(err, "failed to move %s to %s", item, itemDest)
		}
	}

	return nil
}

// removePaths deletes files (and directories if recursive is set). All paths are checked before the first
// one is removed.
func removePaths(args []string, recursive, force bool) error {
	items, err := expandArgs(args, force)
	if err != nil {
		return err
	}

	existing := make([]string, 0, len(items))
	for _, item := range items {
		info, err := os.Stat(item)
		if err != nil {
			if force && eris.Is(err, os.ErrNotExist) {
				continue
			}
			return eris.Wrapf(err, "could not stat %s", item)
		}

		if info.IsDir() && !recursive {
			return eris.Errorf("%s is a directory but -r wasn't passed", item)
		}
		existing = append(existing, item)
	}

	var result error
	for _, item := range existing {
		if err := os.RemoveAll(item); err != nil {
			result = multierror.Append(result, eris.Wrapf(err, "could not delete %s", item))
		}
	}

	return result
}

func makeDirs(args []string, parents bool) error {
	for _, item := range args {
		var err error
		if parents {
			err = os.MkdirAll(item, 0770)
		} else {
			err = os.Mkdir(item, 0770)
		}

		if err != nil {
			return eris.Wrapf(err, "failed to create %s", item)
		}
	}

	return nil
}
