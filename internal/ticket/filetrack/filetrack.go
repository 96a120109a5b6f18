// Package filetrack computes and tracks file-level identity (SHA-256
// hash) so the batch orchestrator can short-circuit reprocessing a file
// it has already ingested, independent of ticket-level duplicate
// detection in internal/ticket/dedupe.
package filetrack

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// DefaultChunkSize matches the source's calculate_file_hash default.
const DefaultChunkSize = 8192

// Info is the file metadata snapshot captured at processing time.
type Info struct {
	Path     string
	Name     string
	Size     int64
	Hash     string
	Modified time.Time
}

// Hash returns the SHA-256 hex digest of the file at path, reading it in
// DefaultChunkSize chunks so large PDFs don't need to fit in memory.
func Hash(path string) (string, error) {
	return HashChunked(path, DefaultChunkSize)
}

// HashChunked is Hash with an explicit chunk size, exposed for tests.
func HashChunked(path string, chunkSize int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("filetrack: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	// Hide *os.File's WriteTo so CopyBuffer reads through buf.
	if _, err := io.CopyBuffer(h, struct{ io.Reader }{f}, buf); err != nil {
		return "", fmt.Errorf("filetrack: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyHash reports whether the file at path currently hashes to
// expectedHash (case-insensitive compare, matching the source idiom).
func VerifyHash(path, expectedHash string) (bool, error) {
	actual, err := Hash(path)
	if err != nil {
		return false, err
	}
	return equalFoldHex(actual, expectedHash), nil
}

func equalFoldHex(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'F' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'F' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// GetInfo resolves path and returns its Info, including a fresh hash
// computation — a supplemented convenience over the source's
// get_file_info, used by the batch orchestrator to hash each file before
// processing it and by `ticketctl inspect`.
func GetInfo(path string) (Info, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Info{}, fmt.Errorf("filetrack: resolve %s: %w", path, err)
	}

	stat, err := os.Stat(abs)
	if err != nil {
		return Info{}, fmt.Errorf("filetrack: stat %s: %w", abs, err)
	}

	hash, err := Hash(abs)
	if err != nil {
		return Info{}, err
	}

	return Info{
		Path:     abs,
		Name:     stat.Name(),
		Size:     stat.Size(),
		Hash:     hash,
		Modified: stat.ModTime(),
	}, nil
}

// Ref identifies one ticket row that carries a given file hash, the
// minimal shape check_duplicate_file needs to report an original.
type Ref struct {
	TicketID  int64
	FileID    string
	CreatedAt time.Time
}

// Finder looks up every ticket row persisted against a file hash,
// independent of the batch run that created them. repository.Store
// implements it.
type Finder interface {
	FindByFileHash(ctx context.Context, hash string) ([]Ref, error)
}

// DuplicateFileResult mirrors the source's DuplicateFileResult: whether
// hash has been seen before, and if so which file produced the earliest
// tickets and how many exist.
type DuplicateFileResult struct {
	IsDuplicate            bool
	FileHash               string
	OriginalFilePath       string
	OriginalProcessingDate time.Time
	TicketCount            int
	TicketIDs              []int64
}

// Message mirrors DuplicateFileResult.message: a human-readable summary
// for logs and review payloads.
func (r DuplicateFileResult) Message() string {
	if !r.IsDuplicate {
		return "file has not been processed before"
	}
	return fmt.Sprintf(
		"duplicate file detected! original: %s (processed %s, %d tickets created)",
		r.OriginalFilePath, r.OriginalProcessingDate.Format(time.RFC3339), r.TicketCount,
	)
}

// CheckDuplicateFile is the cross-run counterpart to the in-batch
// seenHash map: it asks finder whether any ticket, from any prior run,
// was ever persisted against hash. Exact port of check_duplicate_file,
// minus the optional hash-calculation branch — callers always pass an
// already-computed hash since GetInfo has already produced one by the
// time this runs.
func CheckDuplicateFile(ctx context.Context, finder Finder, hash string) (DuplicateFileResult, error) {
	refs, err := finder.FindByFileHash(ctx, hash)
	if err != nil {
		return DuplicateFileResult{}, fmt.Errorf("filetrack: check duplicate file: %w", err)
	}
	if len(refs) == 0 {
		return DuplicateFileResult{FileHash: hash}, nil
	}

	first := refs[0]
	ids := make([]int64, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.TicketID)
		if r.CreatedAt.Before(first.CreatedAt) {
			first = r
		}
	}

	return DuplicateFileResult{
		IsDuplicate:            true,
		FileHash:               hash,
		OriginalFilePath:       first.FileID,
		OriginalProcessingDate: first.CreatedAt,
		TicketCount:            len(refs),
		TicketIDs:              ids,
	}, nil
}
