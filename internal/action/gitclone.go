package action

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/dalecbuild/emake/internal/loader"
)

// runGitClone shells out to the system git binary — the same approach the
// teacher's source_git.go takes for its own git fetches, and the approach
// actions/git_clone.rs takes via git2's RepoBuilder translated to a plain
// subprocess, since no pack repo embeds a pure-Go or cgo git client.
// Username/Password and SSHKey are mutually exclusive, resolved through
// ctx.Secrets before the clone runs.
func runGitClone(ctx Context, a *loader.GitCloneAction) error {
	if a.SSHKey != "" && (a.Username != "" || a.Password != "") {
		return errors.New("git_clone: ssh_key and username/password are mutually exclusive")
	}

	if err := os.MkdirAll(filepath.Dir(a.Destination), 0o755); err != nil {
		return errors.Wrapf(err, "create parent of %s", a.Destination)
	}

	// A shallow clone cannot check out an arbitrary sha, so the clone is
	// only shallow when no Commit is requested; Commit is checked out below.
	args := []string{"clone"}
	if a.Commit == "" {
		args = append(args, "--depth", "1")
	}

	env := os.Environ()
	repoURL := a.URL

	switch {
	case a.SSHKey != "":
		keyPath, err := ctx.resolveSecretToTempFile(a.SSHKey, "emake-ssh-key-*")
		if err != nil {
			return err
		}
		defer os.Remove(keyPath)
		env = append(env, "GIT_SSH_COMMAND=ssh -i "+keyPath+" -o StrictHostKeyChecking=no")

	case a.Username != "" || a.Password != "":
		user, pass, err := resolveGitCredentials(ctx, a)
		if err != nil {
			return err
		}
		repoURL = embedCredentials(a.URL, user, pass)
	}

	args = append(args, repoURL, a.Destination)

	cmd := exec.Command("git", args...)
	cmd.Env = env
	out, err := cmd.CombinedOutput()
	if ctx.Log != nil && len(out) > 0 {
		ctx.Log.Write(string(out))
	}
	if err != nil {
		return errors.Wrapf(err, "git clone failed: %s", string(out))
	}

	if a.Commit != "" {
		checkout := exec.Command("git", "-C", a.Destination, "checkout", a.Commit)
		out, err := checkout.CombinedOutput()
		if ctx.Log != nil && len(out) > 0 {
			ctx.Log.Write(string(out))
		}
		if err != nil {
			return errors.Wrapf(err, "git checkout %s failed: %s", a.Commit, string(out))
		}
	}
	return nil
}

func resolveGitCredentials(ctx Context, a *loader.GitCloneAction) (user, pass string, err error) {
	if a.Username != "" {
		user, err = ctx.resolveSecret(a.Username)
		if err != nil {
			return "", "", err
		}
	}
	if a.Password != "" {
		pass, err = ctx.resolveSecret(a.Password)
		if err != nil {
			return "", "", err
		}
	}
	return user, pass, nil
}

func (c Context) resolveSecret(name string) (string, error) {
	if c.Secrets == nil {
		return "", errors.New("no secret resolver configured")
	}
	return c.Secrets.ResolveSecretByName(c.BuildfilePath, name)
}

func (c Context) resolveSecretToTempFile(name, pattern string) (string, error) {
	v, err := c.resolveSecret(name)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", errors.Wrap(err, "create temp file for secret")
	}
	defer f.Close()
	if _, err := f.WriteString(v); err != nil {
		return "", errors.Wrap(err, "write secret to temp file")
	}
	if err := f.Chmod(0o600); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// embedCredentials inlines basic-auth credentials into a git remote URL,
// the conventional way to authenticate an https clone without a credential
// helper.
func embedCredentials(rawURL, user, pass string) string {
	const https = "https://"
	if len(rawURL) < len(https) || rawURL[:len(https)] != https {
		return rawURL
	}
	rest := rawURL[len(https):]
	if user == "" {
		return rawURL
	}
	cred := user
	if pass != "" {
		cred += ":" + pass
	}
	return https + cred + "@" + rest
}
