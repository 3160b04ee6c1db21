package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/litcat/litrec/internal/config"
	"github.com/litcat/litrec/internal/conflict"
	"github.com/litcat/litrec/internal/merge"
	"github.com/litcat/litrec/internal/pubdate"
	"github.com/litcat/litrec/internal/storage"
)

func TestExitCodeFor(t *testing.T) {
	_, dateErr := pubdate.Normalize("not a date")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"fetch failure", conflict.Wrap(conflict.UpstreamFetchFailure, "WB", errors.New("503")), ExitFetchError},
		{"joined fetch failure", errors.Join(fmt.Errorf("WB: %w", conflict.Wrap(conflict.UpstreamFetchFailure, "WB", errors.New("503")))), ExitFetchError},
		{"invalid config", fmt.Errorf("%w: batch_size", config.ErrInvalid), ExitConfigError},
		{"missing actor", storage.ErrMissingActor, ExitConfigError},
		{"self merge", merge.ErrSelfMerge, ExitDataError},
		{"unknown curie", fmt.Errorf("AGR:x: %w", storage.ErrNotFound), ExitDataError},
		{"bad date", dateErr, ExitDataError},
		{"multi match", conflict.New(conflict.MultiCanonicalMatch, "PMID:1", "held by 2"), ExitDataError},
		{"other", errors.New("disk full"), ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestNormalizeDates(t *testing.T) {
	got := normalizeDates([]string{"2019", "not a date"})
	if got[0].Start != "2019-01-01" || got[0].End != "2019-12-31" || got[0].Error != "" {
		t.Errorf("normalizeDates(2019) = %+v", got[0])
	}
	if got[1].Error == "" || got[1].Start != "" {
		t.Errorf("normalizeDates(not a date) = %+v", got[1])
	}
}
