package git

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	gitbackend "github.com/thiagokokada/gitk-compare/internal/git/backend"
)

func TestReferences(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	fake := &fakeBackend{
		repoPath: "/repo",
		listRefsFunc: func(context.Context) ([]gitbackend.Ref, error) {
			return []gitbackend.Ref{
				{Hash: "1", Kind: gitbackend.RefKindBranch, Name: "stale", CreatedAt: now.Add(-31 * day)},
				{Hash: "2", Kind: gitbackend.RefKindBranch, Name: "b-same", CreatedAt: now.Add(-2 * day)},
				{Hash: "3", Kind: gitbackend.RefKindTag, Name: "v1", CreatedAt: now.Add(-1 * day)},
				{Hash: "4", Kind: gitbackend.RefKindBranch, Name: "a-same", CreatedAt: now.Add(-2 * day)},
				{Hash: "5", Kind: gitbackend.RefKindBranch, Name: "edge", CreatedAt: now.Add(-30 * day)},
				{Hash: "6", Kind: gitbackend.RefKindBranch, Name: "undated"},
				{Hash: "", Kind: gitbackend.RefKindBranch, Name: "broken", CreatedAt: now},
			}, nil
		},
	}

	tests := []struct {
		name   string
		window time.Duration
		want   []string
	}{
		{name: "default_window", want: []string{"tag: v1", "b-same", "a-same", "edge"}},
		{name: "narrow_window", window: 36 * time.Hour, want: []string{"tag: v1"}},
		{name: "wide_window", window: 365 * day, want: []string{"tag: v1", "b-same", "a-same", "edge", "stale"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := New(fake, Options{RecencyWindow: tt.window, Now: func() time.Time { return now }})
			got, err := svc.ReferenceNames(context.Background())
			if err != nil {
				t.Fatalf("ReferenceNames() error = %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Fatalf("ReferenceNames() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReferences_Error(t *testing.T) {
	t.Parallel()

	fake := &fakeBackend{
		repoPath: "/nope",
		listRefsFunc: func(context.Context) ([]gitbackend.Ref, error) {
			return nil, ErrRepositoryNotFound
		},
	}
	_, err := New(fake, Options{}).References(context.Background())
	if !errors.Is(err, ErrRepositoryNotFound) {
		t.Fatalf("References() error = %v, want ErrRepositoryNotFound", err)
	}
}
