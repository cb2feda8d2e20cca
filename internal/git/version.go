package git

import gitbackend "github.com/thiagokokada/gitk-compare/internal/git/backend"

// GitVersion reports the git executable the CLI backend would run together
// with the oldest release it supports.
func GitVersion() (current, minimum string, err error) {
	current, err = gitbackend.GitVersion()
	return current, gitbackend.MinGitVersion(), err
}
