package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultDir is where sessions live relative to the working directory.
var DefaultDir = filepath.Join(".steer", "sessions")

type Message struct {
	Role    string         `json:"role"` // "system", "user", "assistant"
	Content string         `json:"content"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// Info is the trailer written once an episode has ended.
type Info struct {
	ExitStatus string  `json:"exit_status,omitempty"`
	Submission string  `json:"submission,omitempty"`
	ModelCalls int     `json:"model_calls"`
	ModelCost  float64 `json:"model_cost"`
	Mode       string  `json:"mode,omitempty"`
	Model      string  `json:"model,omitempty"`
}

// Session is the transcript of one episode. Messages only ever grow, except
// through Truncate.
type Session struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Task     string    `json:"task,omitempty"`
	Created  time.Time `json:"created"`
	Messages []Message `json:"messages"`
	Info     Info      `json:"info"`
	path     string
}

// New creates a new session stored under dir. An empty dir keeps the session
// in memory only.
func New(dir, name string) (*Session, error) {
	s := &Session{
		ID:       uuid.NewString(),
		Name:     name,
		Created:  time.Now(),
		Messages: []Message{},
	}
	if dir == "" {
		return s, nil
	}
	path, err := sessionPath(dir, name)
	if err != nil {
		return nil, err
	}
	s.path = path
	return s, nil
}

// Load loads an existing session from disk.
func Load(dir, name string) (*Session, error) {
	path, err := sessionPath(dir, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read session file %s: %w", path, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("could not parse session file %s: %w", path, err)
	}
	s.path = path
	return &s, nil
}

// List returns the names of the sessions saved under dir, newest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not list sessions in %s: %w", dir, err)
	}
	type named struct {
		name string
		mod  time.Time
	}
	var found []named
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		found = append(found, named{strings.TrimSuffix(e.Name(), ".json"), fi.ModTime()})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].mod.After(found[j].mod) })
	names := make([]string, len(found))
	for i, f := range found {
		names[i] = f.name
	}
	return names, nil
}

// Save writes the current session state to disk. In-memory sessions are a no-op.
func (s *Session) Save() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	return os.WriteFile(s.path, data, 0644)
}

// Path returns the file the session is saved to, or "" for in-memory sessions.
func (s *Session) Path() string { return s.path }

// AddMessage appends a message to the session history.
func (s *Session) AddMessage(msg Message) {
	s.Messages = append(s.Messages, msg)
}

// Reset drops the whole history.
func (s *Session) Reset() {
	s.Messages = []Message{}
}

// Len returns the number of messages in the transcript.
func (s *Session) Len() int { return len(s.Messages) }

// Truncate keeps the first n messages. It never reorders or edits the kept prefix.
func (s *Session) Truncate(n int) error {
	if n < 0 || n > len(s.Messages) {
		return fmt.Errorf("cannot truncate %d messages to %d", len(s.Messages), n)
	}
	clear(s.Messages[n:])
	s.Messages = s.Messages[:n]
	return nil
}

// Last returns the most recent message, if any.
func (s *Session) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

func sessionPath(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("could not create session directory: %w", err)
	}
	return filepath.Join(dir, fmt.Sprintf("%s.json", name)), nil
}
