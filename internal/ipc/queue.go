package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Queue is the pair of request and response directories.
type Queue struct {
	RequestDir  string
	ResponseDir string
}

// NewQueue returns a queue over the two directories.
func NewQueue(requestDir, responseDir string) *Queue {
	return &Queue{RequestDir: requestDir, ResponseDir: responseDir}
}

// Ensure creates both directories.
func (q *Queue) Ensure() error {
	for _, dir := range []string{q.RequestDir, q.ResponseDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ipc: create %s: %w", dir, err)
		}
	}
	return nil
}

// Pending lists request files in name order.
func (q *Queue) Pending() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(q.RequestDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("ipc: list requests: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Read loads and validates one request file. On a parse failure the
// returned request still carries the id when it could be recovered.
func (q *Queue) Read(path string) (Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Request{ID: IDFromPath(path)}, fmt.Errorf("ipc: read request: %w", err)
	}
	req, err := ParseRequest(data)
	if req.ID == "" {
		req.ID = IDFromPath(path)
	}
	return req, err
}

// Done removes an answered request file.
func (q *Queue) Done(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ipc: remove request: %w", err)
	}
	return nil
}

// Respond writes the response document for id.
func (q *Queue) Respond(id string, v any) error {
	if err := validID(id); err != nil {
		return err
	}
	if err := WriteJSON(q.responsePath(id), v); err != nil {
		return fmt.Errorf("ipc: write response %s: %w", id, err)
	}
	return nil
}

// Submit writes a request document.
func (q *Queue) Submit(req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := WriteJSON(filepath.Join(q.RequestDir, req.ID+".json"), req); err != nil {
		return fmt.Errorf("ipc: write request %s: %w", req.ID, err)
	}
	return nil
}

// Take reads the response for id into v and deletes it. It reports false
// when no response exists yet.
func (q *Queue) Take(id string, v any) (bool, error) {
	path := q.responsePath(id)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ipc: read response: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("ipc: parse response %s: %w", id, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return true, fmt.Errorf("ipc: remove response: %w", err)
	}
	return true, nil
}

// Withdraw removes the request for id and any response already written
// for it. Callers use it when they stop waiting.
func (q *Queue) Withdraw(id string) error {
	if err := validID(id); err != nil {
		return err
	}
	for _, path := range []string{filepath.Join(q.RequestDir, id+".json"), q.responsePath(id)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("ipc: withdraw %s: %w", id, err)
		}
	}
	return nil
}

func (q *Queue) responsePath(id string) string {
	return filepath.Join(q.ResponseDir, id+".json")
}
