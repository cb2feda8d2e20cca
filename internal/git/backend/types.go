package backend

import (
	"strings"
	"time"
)

type Signature struct {
	Name  string
	Email string
	When  time.Time
}

type Commit struct {
	Hash         string
	ParentHashes []string
	Author       Signature
	Committer    Signature
	Subject      string
	Body         string
}

type RefKind uint8

const (
	RefKindBranch RefKind = iota
	RefKindTag
)

// TagDisplayPrefix marks tags in display names so a tag and a branch sharing a
// short name stay distinguishable in a flat list of strings.
const TagDisplayPrefix = "tag: "

type Ref struct {
	Hash      string
	Kind      RefKind
	Name      string // short name: main, v1
	CreatedAt time.Time
}

func (r Ref) DisplayName() string {
	if r.Kind == RefKindTag {
		return TagDisplayPrefix + r.Name
	}
	return r.Name
}

// Revision returns the name to hand to git when resolving the ref. Tags use
// their full ref name so a branch with the same short name cannot shadow them.
func (r Ref) Revision() string {
	if r.Kind == RefKindTag {
		return "refs/tags/" + r.Name
	}
	return r.Name
}

// ParseRefName turns a display name back into a Ref without a hash.
func ParseRefName(display string) Ref {
	display = strings.TrimSpace(display)
	if name, ok := strings.CutPrefix(display, TagDisplayPrefix); ok {
		return Ref{Kind: RefKindTag, Name: strings.TrimSpace(name)}
	}
	return Ref{Kind: RefKindBranch, Name: display}
}

// splitMessage splits a raw commit message the way git's %s and %b
// placeholders do: the subject is the first paragraph joined with spaces.
func splitMessage(message string) (subject, body string) {
	message = strings.ReplaceAll(message, "\r\n", "\n")
	message = strings.TrimLeft(message, "\n")
	para, rest, _ := strings.Cut(message, "\n\n")
	var words []string
	for line := range strings.SplitSeq(para, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			words = append(words, line)
		}
	}
	subject = strings.Join(words, " ")
	body = strings.TrimLeft(rest, "\n")
	return subject, body
}
