package git

import gitbackend "github.com/thiagokokada/gitk-compare/internal/git/backend"

var (
	ErrRepositoryNotFound = gitbackend.ErrRepositoryNotFound
	ErrNoCommonAncestor   = gitbackend.ErrNoCommonAncestor
	ErrMalformedReference = gitbackend.ErrMalformedReference
	ErrNotFound           = gitbackend.ErrNotFound
	ErrTransientIO        = gitbackend.ErrTransientIO
	ErrParse              = gitbackend.ErrParse
)
