package backend

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// NUL-delimited records; commit messages cannot contain NUL.
const logRecordFormat = "%H%n%P%n%an%n%ae%n%aI%n%cn%n%ce%n%cI%n%s%n%b%x00"

// logRecordFields is the number of newline separated header fields before the
// body.
const logRecordFields = 9

type gitLogStream struct {
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	r       *bufio.Reader
	stderr  bytes.Buffer
	parent  context.Context
	callCtx context.Context
	cancel  context.CancelFunc

	waitOnce sync.Once
	waitErr  error
}

func (g *gitCLI) startLogStream(ctx context.Context, revs ...string) (*gitLogStream, error) {
	if len(revs) == 0 {
		return nil, fmt.Errorf("starting commit not specified")
	}
	callCtx, cancel := g.callContext(ctx)
	args := []string{
		"log",
		"--no-color",
		"--no-decorate",
		"--date-order",
		"--no-patch",
		// tformat keeps git from adding a blank line between records.
		"--pretty=tformat:" + logRecordFormat,
	}
	args = append(args, revs...)
	args = append(args, "--")
	cmd := exec.CommandContext(callCtx, "git", g.commandArgs(args)...)
	cmd.Env = gitEnv()

	stream := &gitLogStream{cmd: cmd, parent: ctx, callCtx: callCtx, cancel: cancel}
	cmd.Stderr = &stream.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("git log stdout: %w: %v", ErrTransientIO, err)
	}
	stream.stdout = stdout
	stream.r = bufio.NewReader(stdout)
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, classifyGitError(ctx, callCtx, "git log", err, stream.stderr.String())
	}
	return stream, nil
}

// Next returns the next commit or io.EOF once git exited cleanly.
func (s *gitLogStream) Next() (Commit, error) {
	rec, err := s.r.ReadBytes(0)
	if err != nil {
		if errors.Is(err, io.EOF) {
			if waitErr := s.wait(); waitErr != nil {
				return Commit{}, waitErr
			}
			return Commit{}, io.EOF
		}
		return Commit{}, fmt.Errorf("git log read: %w: %v", ErrTransientIO, err)
	}
	rec = rec[:len(rec)-1]
	// records after the first start with the newline tformat appends
	rec = bytes.TrimLeft(rec, "\r\n")
	if len(rec) == 0 {
		return Commit{}, fmt.Errorf("%w: empty git log record", ErrParse)
	}
	return parseGitLogRecord(rec)
}

func (s *gitLogStream) Close() error {
	s.cancel()
	_ = s.stdout.Close()
	err := s.wait()
	if s.parent.Err() == nil && errors.Is(s.callCtx.Err(), context.Canceled) {
		// killed by our own cancel after the caller stopped reading
		return nil
	}
	return err
}

func (s *gitLogStream) wait() error {
	s.waitOnce.Do(func() {
		if err := s.cmd.Wait(); err != nil {
			s.waitErr = classifyGitError(s.parent, s.callCtx, "git log", err, s.stderr.String())
		}
	})
	return s.waitErr
}

func parseGitLogRecord(rec []byte) (Commit, error) {
	parts := strings.Split(string(rec), "\n")
	if len(parts) < logRecordFields-1 {
		return Commit{}, fmt.Errorf("%w: git log record has %d lines", ErrParse, len(parts))
	}
	hash := strings.TrimSpace(parts[0])
	if hash == "" {
		return Commit{}, fmt.Errorf("%w: missing commit hash", ErrParse)
	}
	authorWhen, _ := time.Parse(time.RFC3339, strings.TrimSpace(parts[4]))
	committerWhen, _ := time.Parse(time.RFC3339, strings.TrimSpace(parts[7]))
	commit := Commit{
		Hash:         hash,
		ParentHashes: strings.Fields(parts[1]),
		Author:       Signature{Name: parts[2], Email: parts[3], When: authorWhen},
		Committer:    Signature{Name: parts[5], Email: parts[6], When: committerWhen},
	}
	if len(parts) > 8 {
		commit.Subject = parts[8]
	}
	if len(parts) > 9 {
		commit.Body = strings.Join(parts[9:], "\n")
	}
	return commit, nil
}
