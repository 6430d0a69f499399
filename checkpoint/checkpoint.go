// Package checkpoint persists plan state to disk, one canonical JSON
// file per plan, written atomically so readers observe either the prior
// complete file or the new complete file and never a partial one.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	aicore "github.com/nevindra/aicore"
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements aicore.CheckpointStore on a directory of
// <sanitized_plan_id>.json files.
type Store struct {
	root   string
	logger *slog.Logger
}

var _ aicore.CheckpointStore = (*Store)(nil)

// New creates a Store rooted at dir (typically ".runtime/plans").
func New(dir string, opts ...StoreOption) *Store {
	s := &Store{root: dir, logger: aicore.NopLogger()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// PathFor maps a plan id to its file path. Characters outside
// alphanumerics and -_. are removed; an id that sanitizes to nothing
// falls back to "plan".
func (s *Store) PathFor(planID string) string {
	var b strings.Builder
	for _, ch := range planID {
		if ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' ||
			ch == '-' || ch == '_' || ch == '.' {
			b.WriteRune(ch)
		}
	}
	safe := b.String()
	if safe == "" {
		safe = "plan"
	}
	return filepath.Join(s.root, safe+".json")
}

// Wrap builds a validated state envelope around a plan document.
// created_utc is carried over from the plan when present.
func (s *Store) Wrap(plan map[string]any, status string, cursors map[string]any) (*aicore.PlanState, error) {
	if plan == nil {
		return nil, &aicore.ErrCheckpoint{Code: aicore.ErrCodeSchemaMismatch, Reason: "plan must be an object"}
	}
	planID, _ := plan["plan_id"].(string)
	if planID == "" {
		planID, _ = plan["id"].(string)
	}
	if planID == "" {
		planID = "plan"
	}
	goal, _ := plan["goal"].(string)

	createdUTC, _ := plan["created_utc"].(string)
	if createdUTC == "" {
		createdUTC, _ = plan["created_at"].(string)
	}
	if createdUTC == "" {
		createdUTC = utcISOms()
	}
	if cursors == nil {
		cursors = map[string]any{}
	}

	state := &aicore.PlanState{
		SchemaVersion: aicore.PlanStateVersion,
		PlanID:        planID,
		Goal:          goal,
		CreatedUTC:    createdUTC,
		UpdatedUTC:    utcISOms(),
		Status:        status,
		Cursors:       cursors,
		Plan:          plan,
	}
	if err := validate(state); err != nil {
		return nil, err
	}
	return state, nil
}

// Save validates and atomically writes the state, refreshing
// updated_utc. Stored bytes are canonical JSON with sorted keys and no
// spaces so identical states serialize identically.
func (s *Store) Save(state *aicore.PlanState) (aicore.SaveReceipt, error) {
	start := time.Now()
	if err := validate(state); err != nil {
		return aicore.SaveReceipt{}, err
	}
	state.UpdatedUTC = utcISOms()

	data, err := canonicalJSON(state)
	if err != nil {
		return aicore.SaveReceipt{}, fmt.Errorf("checkpoint: encode state: %w", err)
	}

	path := s.PathFor(state.PlanID)
	if err := atomicWrite(path, data); err != nil {
		s.logger.Error("checkpoint: save failed", "plan_id", state.PlanID, "error", err)
		return aicore.SaveReceipt{}, fmt.Errorf("checkpoint: write %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	s.logger.Debug("checkpoint: saved", "plan_id", state.PlanID, "status", state.Status, "bytes", len(data), "duration", time.Since(start))
	return aicore.SaveReceipt{Path: abs, Bytes: len(data), UpdatedUTC: state.UpdatedUTC}, nil
}

// Load reads and validates the state for planID.
func (s *Store) Load(planID string) (*aicore.PlanState, error) {
	path := s.PathFor(planID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &aicore.ErrCheckpoint{Code: aicore.ErrCodeNotFound, Reason: path}
		}
		return nil, fmt.Errorf("checkpoint: read %s: %w", path, err)
	}
	var state aicore.PlanState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, &aicore.ErrCheckpoint{Code: aicore.ErrCodeSchemaMismatch, Reason: fmt.Sprintf("decode: %v", err)}
	}
	if err := validate(&state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Exists reports whether a checkpoint file exists for planID.
func (s *Store) Exists(planID string) bool {
	_, err := os.Stat(s.PathFor(planID))
	return err == nil
}

// Delete removes the checkpoint file for planID, if present.
func (s *Store) Delete(planID string) error {
	err := os.Remove(s.PathFor(planID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: delete: %w", err)
	}
	return nil
}

func validate(state *aicore.PlanState) error {
	if state == nil {
		return &aicore.ErrCheckpoint{Code: aicore.ErrCodeSchemaMismatch, Reason: "state is nil"}
	}
	if state.SchemaVersion != aicore.PlanStateVersion {
		return &aicore.ErrCheckpoint{
			Code:   aicore.ErrCodeSchemaMismatch,
			Reason: fmt.Sprintf("unsupported schema_version %d", state.SchemaVersion),
		}
	}
	if state.PlanID == "" {
		return &aicore.ErrCheckpoint{Code: aicore.ErrCodeSchemaMismatch, Reason: "plan_id must be non-empty string"}
	}
	if state.Plan == nil {
		return &aicore.ErrCheckpoint{Code: aicore.ErrCodeSchemaMismatch, Reason: "plan must be an object"}
	}
	return nil
}

// canonicalJSON serializes with sorted keys and no extra whitespace.
// Encoding goes through a generic map because Go sorts map keys during
// marshaling, which gives the byte-stable form for free.
func canonicalJSON(state *aicore.PlanState) ([]byte, error) {
	structBytes, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(structBytes, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// atomicWrite writes data to path via temp file, fsync, and rename.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	// Durability of the rename itself on POSIX needs the directory synced.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// List returns the plan ids with checkpoint files under the root,
// sorted. Used by operational tooling.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: list: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func utcISOms() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
