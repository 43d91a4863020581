package framestore

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NatsStore backs the frame mailbox with a JetStream key-value bucket so
// consumers in other processes can sample frames without touching the
// source stream.
type NatsStore struct {
	kv nats.KeyValue
}

// NewNatsStore binds to the bucket, creating it if missing. History depth 1
// keeps the bucket a mailbox, not a log.
func NewNatsStore(conn *nats.Conn, bucket string) (*NatsStore, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  bucket,
			History: 1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to bind frame bucket %s: %w", bucket, err)
	}

	log.Info().Str("bucket", bucket).Msg("Frame store bucket ready")
	return &NatsStore{kv: kv}, nil
}

func (s *NatsStore) Put(streamID string, data []byte) error {
	_, err := s.kv.Put(encodeKey(streamID), data)
	return err
}

func (s *NatsStore) Get(streamID string) ([]byte, error) {
	entry, err := s.kv.Get(encodeKey(streamID))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry.Value(), nil
}

func (s *NatsStore) Delete(streamID string) error {
	err := s.kv.Purge(encodeKey(streamID))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (s *NatsStore) DeleteAll() error {
	keys, err := s.kv.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.kv.Purge(key); err != nil {
			return err
		}
	}
	return nil
}

// encodeKey maps a stream identifier (typically a URL) onto the KV key
// alphabet, which does not allow ':' or '/'.
func encodeKey(streamID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(streamID))
}
