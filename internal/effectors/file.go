package effectors

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileSender is a Sender for running without Discord. Every message is
// appended as one JSON line to <state>/system/outbox.jsonl; files are written
// next to it.
type FileSender struct {
	dir        string
	outputPath string
	mu         sync.Mutex
}

type fileRecord struct {
	At        time.Time `json:"at"`
	ChannelID string    `json:"channel_id"`
	Content   string    `json:"content"`
	File      string    `json:"file,omitempty"`
}

// NewFileSender creates a sender writing under statePath
func NewFileSender(statePath string) (*FileSender, error) {
	dir := filepath.Join(statePath, "system")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return &FileSender{dir: dir, outputPath: filepath.Join(dir, "outbox.jsonl")}, nil
}

// Path returns the JSONL file messages are appended to
func (s *FileSender) Path() string {
	return s.outputPath
}

func (s *FileSender) Send(channelID, content string) error {
	return s.append(fileRecord{At: time.Now(), ChannelID: channelID, Content: content})
}

func (s *FileSender) SendFile(channelID, content, name, contentType string, data []byte) error {
	path := filepath.Join(s.dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return s.append(fileRecord{At: time.Now(), ChannelID: channelID, Content: content, File: path})
}

// DMChannel uses the user id as the channel
func (s *FileSender) DMChannel(userID string) (string, error) {
	return "dm:" + userID, nil
}

func (s *FileSender) append(rec fileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.outputPath, err)
	}
	defer f.Close()

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}

	display := rec.Content
	if len(display) > 80 {
		display = display[:80] + "..."
	}
	log.Printf("[file-sender] %s: %s", rec.ChannelID, display)
	return nil
}
