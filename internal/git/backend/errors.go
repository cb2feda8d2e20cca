package backend

import "errors"

var (
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrNoCommonAncestor   = errors.New("no common ancestor")
	ErrMalformedReference = errors.New("malformed reference")
	ErrNotFound           = errors.New("not found")
	ErrTransientIO        = errors.New("transient i/o failure")
	ErrParse              = errors.New("unexpected git output")
)
