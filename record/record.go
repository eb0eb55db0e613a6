// Package record persists one run record per day and argument set so a
// repeated invocation can reuse the upstream manifest of an earlier one.
// Stores are last-writer-wins.
package record

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
)

// Record is what a run persists.
type Record struct {
	Key     string    `json:"key"`
	RunID   string    `json:"run_id"`
	Command string    `json:"command"`
	Args    []string  `json:"args"`
	Created time.Time `json:"created"`

	// Manifest maps each artifact to the upstream refs Phase 1 found.
	Manifest map[string][]domain.UpstreamRef `json:"manifest,omitempty"`

	Results []domain.ArtifactResult `json:"results,omitempty"`
}

// Store reads and writes records by key.
type Store interface {
	// Get returns the record at key. A missing record is CodeNotFound.
	Get(ctx context.Context, key string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
}

// Key is "YYYY-MM-DD/<command>-<hash>.json" where hash is the first 12 hex
// digits of the sha256 of the sorted args.
func Key(day time.Time, command string, args []string) string {
	sorted := append([]string(nil), args...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return day.UTC().Format("2006-01-02") + "/" + command + "-" + hex.EncodeToString(sum[:])[:12] + ".json"
}

func encode(rec *Record) ([]byte, error) {
	if rec.Key == "" {
		return nil, errors.New(errors.CodeInvalidInput, "record has no key")
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to encode record")
	}
	return data, nil
}

func decode(key string, data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.NewParseError("record", key, err)
	}
	return &rec, nil
}

func notFound(key string) error {
	return errors.Newf(errors.CodeNotFound, "record %s not found", key)
}
