// Package storage handles persistence of subscriber records, the alert
// history and the Telegram update cursor. State lives either in a local
// directory (one JSON document per record) or in a Cloud Storage bucket;
// both are whole-document read/replace.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"

	"tmpmurcia-notifier/pkg/notifier"
)

const subscriberPrefix = "sub-"

var errObjectNotExist = errors.New("storage: object doesn't exist")

// Store persists notifier state.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
}

// New creates a storage handler. With a non-empty localPath records are kept
// as files under that directory; otherwise they live in the given bucket.
func New(client *storage.Client, bucket, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
	}
}

// SubscriberKey generates the object name for a chat ID. Telegram chat IDs
// are decimal integers (negative for group chats); anything else is rejected
// so a crafted ID can never escape the storage prefix.
func SubscriberKey(chatID string) string {
	digits := chatID
	if strings.HasPrefix(digits, "-") {
		digits = digits[1:]
	}
	if digits == "" {
		return ""
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return fmt.Sprintf("%s%s.json", subscriberPrefix, chatID)
}

// SaveSubscriber persists one subscriber record.
func (s *Store) SaveSubscriber(ctx context.Context, sub *notifier.Subscriber) error {
	key := SubscriberKey(sub.ChatID)
	if key == "" {
		return fmt.Errorf("invalid chat ID %q", sub.ChatID)
	}

	data, err := json.MarshalIndent(sub, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal subscriber: %w", err)
	}

	if err := s.writeObject(ctx, key, data); err != nil {
		return err
	}

	s.logger.Info("Subscriber saved", "chat_id", sub.ChatID, "lines", len(sub.Lines), "receive_general", sub.ReceiveGeneral)
	return nil
}

// LoadSubscriber loads one subscriber record by chat ID.
func (s *Store) LoadSubscriber(ctx context.Context, chatID string) (*notifier.Subscriber, error) {
	key := SubscriberKey(chatID)
	if key == "" {
		// Same error as "not found" so callers treat junk IDs as absent records
		return nil, errObjectNotExist
	}

	data, err := s.readObject(ctx, key)
	if err != nil {
		return nil, err
	}

	var sub notifier.Subscriber
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("unmarshal subscriber %s: %w", key, err)
	}
	return &sub, nil
}

// ListSubscribers loads every subscriber record, sorted by chat ID so callers
// see a deterministic order. Unreadable records are skipped with a warning
// rather than failing the whole listing.
func (s *Store) ListSubscribers(ctx context.Context) ([]*notifier.Subscriber, error) {
	keys, err := s.listKeys(ctx, subscriberPrefix)
	if err != nil {
		return nil, err
	}

	subs := make([]*notifier.Subscriber, 0, len(keys))
	for _, key := range keys {
		data, err := s.readObject(ctx, key)
		if err != nil {
			s.logger.Warn("Failed to read subscriber record, skipping", "key", key, "error", err)
			continue
		}
		var sub notifier.Subscriber
		if err := json.Unmarshal(data, &sub); err != nil {
			s.logger.Warn("Malformed subscriber record, skipping", "key", key, "error", err)
			continue
		}
		subs = append(subs, &sub)
	}

	sort.Slice(subs, func(i, j int) bool { return subs[i].ChatID < subs[j].ChatID })
	return subs, nil
}

// IsNotFound checks if an error indicates a record was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, errObjectNotExist) || errors.Is(err, storage.ErrObjectNotExist)
}

// readObject fetches one document by key from whichever backend is active.
func (s *Store) readObject(ctx context.Context, key string) ([]byte, error) {
	if s.localPath != "" {
		data, err := os.ReadFile(filepath.Join(s.localPath, key))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errObjectNotExist
			}
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
		return data, nil
	}

	var data []byte
	err := retry.Do(
		func() error {
			r, openErr := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
			if openErr != nil {
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					return retry.Unrecoverable(openErr)
				}
				return fmt.Errorf("open storage reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					s.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read from storage: %w", readErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying load operation after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, errObjectNotExist
		}
		return nil, fmt.Errorf("load %s after retries: %w", key, err)
	}
	return data, nil
}

// writeObject replaces one document. The local backend writes to a temp file
// and renames it into place so a crash mid-write can never leave a truncated
// document behind.
func (s *Store) writeObject(ctx context.Context, key string, data []byte) error {
	if s.localPath != "" {
		target := filepath.Join(s.localPath, key)
		tmp, err := os.CreateTemp(s.localPath, key+".tmp-*")
		if err != nil {
			return fmt.Errorf("create temp file: %w", err)
		}
		tmpName := tmp.Name()
		if _, err := tmp.Write(data); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
			return fmt.Errorf("write temp file: %w", err)
		}
		if err := tmp.Close(); err != nil {
			_ = os.Remove(tmpName)
			return fmt.Errorf("close temp file: %w", err)
		}
		if err := os.Rename(tmpName, target); err != nil {
			_ = os.Remove(tmpName)
			return fmt.Errorf("replace %s: %w", target, err)
		}
		return nil
	}

	err := retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying save operation after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save %s after retries: %w", key, err)
	}
	return nil
}

// listKeys returns object names under a prefix, from whichever backend is active.
func (s *Store) listKeys(ctx context.Context, prefix string) ([]string, error) {
	if s.localPath != "" {
		entries, err := os.ReadDir(s.localPath)
		if err != nil {
			return nil, fmt.Errorf("read local storage directory: %w", err)
		}
		var keys []string
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
				continue
			}
			keys = append(keys, name)
		}
		return keys, nil
	}

	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate storage: %w", err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}
