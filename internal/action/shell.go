package action

import (
	"bufio"
	"os/exec"
	"runtime"
	"strings"

	"github.com/pkg/errors"

	"github.com/dalecbuild/emake/internal/loader"
)

// runShell invokes the step's command body via sh -c (cmd /C on Windows),
// streaming stdout/stderr line-by-line into the progress sink as it runs
// rather than buffering the whole output, matching the source's
// actions/cmd.rs behavior. The command body is template-compiled first, so
// {{ in_files }}/{{ out_files }}/{{ in_files[i] }}/{{ out_files[i] }} (and
// any user variable or get_secret() call) resolve against this node's own
// runtime replacements before the shell ever sees the string — the same
// compile(cwd, &command, ..., Some(&replacements)) step actions/cmd.rs
// performs ahead of its own Command::new(shell).
func runShell(ctx Context, a *loader.ShellAction) error {
	command := a.Cmd
	if ctx.Template != nil {
		compiled, err := ctx.Template.CompileString(command)
		if err != nil {
			return errors.Wrap(err, "compile shell command")
		}
		command = compiled
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/C", command)
	} else {
		cmd = exec.Command("sh", "-c", command)
	}
	cmd.Dir = ctx.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "open stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "open stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "start command")
	}

	done := make(chan struct{}, 2)
	stream := func(r *bufio.Scanner) {
		for r.Scan() {
			if ctx.Log != nil {
				ctx.Log.Write(r.Text())
			}
		}
		done <- struct{}{}
	}
	go stream(bufio.NewScanner(stdout))
	go stream(bufio.NewScanner(stderr))
	<-done
	<-done

	if err := cmd.Wait(); err != nil {
		return errors.Wrapf(err, "command exited with error: %s", strings.TrimSpace(command))
	}
	return nil
}
