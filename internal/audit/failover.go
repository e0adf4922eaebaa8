package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	SpoolDir           = "./data/audit_spool"
	MaxSpoolSize int64 = 1024 * 1024 * 1024 // 1GB
)

func ConfigureFailover(dir string, maxMB int64) {
	if dir != "" {
		SpoolDir = dir
	}
	if maxMB > 0 {
		MaxSpoolSize = maxMB * 1024 * 1024
	}
	_ = os.MkdirAll(SpoolDir, 0750)
}

// SpooledEntry wraps an Entry for JSONL spooling.
type SpooledEntry struct {
	EventID   string    `json:"event_id"`
	Payload   Entry     `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// SpoolEntry writes an audit entry to the local failover log.
func SpoolEntry(e Entry) error {
	if isSpoolFull() {
		if err := rotateSpool(); err != nil {
			return fmt.Errorf("spool full and rotation failed: %v", err)
		}
	}

	payload := SpooledEntry{
		EventID:   e.EventID.String(),
		Payload:   e,
		Timestamp: time.Now(),
	}

	line, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	filename := filepath.Join(SpoolDir, "audit_spool.log")
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(line, '\n'))
	return err
}

func isSpoolFull() bool {
	var size int64
	filepath.Walk(SpoolDir, func(_ string, info fs.FileInfo, err error) error {
		if info != nil && !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size >= MaxSpoolSize
}

func rotateSpool() error {
	// Single-file spool: rotation policy is out of scope for the reference
	// implementation, matching upstream's acknowledged MVP gap.
	return nil
}

// StartReplayer launches the background goroutine that periodically
// attempts to flush spooled entries back into the database.
func (s *Service) StartReplayer(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.ReplaySpool(ctx)
			}
		}
	}()
}

var replayLock sync.Mutex

func (s *Service) ReplaySpool(ctx context.Context) {
	replayLock.Lock()
	defer replayLock.Unlock()

	filename := filepath.Join(SpoolDir, "audit_spool.log")
	info, err := os.Stat(filename)
	if os.IsNotExist(err) || info.Size() == 0 {
		return
	}

	replayFile := filepath.Join(SpoolDir, fmt.Sprintf("replay_%d.log", time.Now().UnixNano()))
	if err := os.Rename(filename, replayFile); err != nil {
		log.Printf("[Audit] failed to rotate spool for replay: %v", err)
		return
	}

	f, err := os.Open(replayFile)
	if err != nil {
		return
	}

	scanner := bufio.NewScanner(f)
	var succeeded, failed int

	for scanner.Scan() {
		var se SpooledEntry
		if err := json.Unmarshal(scanner.Bytes(), &se); err != nil {
			failed++
			continue
		}
		// Write may re-spool on continued DB failure; that's fine, it just
		// moves pending entries into a fresh spool file for the next tick.
		if err := s.Write(ctx, se.Payload); err == nil {
			succeeded++
		}
	}

	f.Close()
	os.Remove(replayFile)

	if succeeded > 0 {
		log.Printf("[Audit] replay flushed %d entries (%d failed to parse)", succeeded, failed)
	}
}
