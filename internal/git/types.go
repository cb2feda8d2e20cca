package git

import (
	"time"

	"github.com/thiagokokada/gitk-compare/internal/diffstat"
)

// CommitSummary is one row of a comparison column.
type CommitSummary struct {
	Hash        string         `json:"hash"`
	Message     string         `json:"message"`
	Author      string         `json:"author"`
	AuthorEmail string         `json:"author_email"`
	Date        time.Time      `json:"date"`
	Stats       diffstat.Stats `json:"stats"`
}

type ComparisonResult struct {
	CommonParent string          `json:"commonParent"`
	Left         []CommitSummary `json:"left"`
	Right        []CommitSummary `json:"right"`
}

type CommitDetail struct {
	Hash        string                `json:"hash"`
	Author      string                `json:"author"`
	AuthorEmail string                `json:"author_email"`
	Date        time.Time             `json:"date"`
	Message     string                `json:"message"`
	Files       []diffstat.FileChange `json:"files"`
}

type FileDiff struct {
	Diff       string `json:"diff"`
	FilePath   string `json:"filePath"`
	CommitHash string `json:"commitHash"`
}

type FileSection struct {
	Path string `json:"path"`
	Line int    `json:"line"`
}

type PatchFile struct {
	Path      string `json:"path"`
	Additions uint   `json:"additions"`
	Deletions uint   `json:"deletions"`
}

type CommitPatch struct {
	Hash     string        `json:"hash"`
	Author   string        `json:"author"`
	Date     time.Time     `json:"date"`
	Message  string        `json:"message"`
	Files    []PatchFile   `json:"files"`
	Diff     string        `json:"diff"`
	Sections []FileSection `json:"sections"`
}
