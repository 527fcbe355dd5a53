package authcore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mojdigital/authcore/internal"
	"github.com/redis/go-redis/v9"
)

const (
	tokenKeyPrefix      = "att"
	tokenIndexKeyPrefix = "atx"
	tokenRecordVersion1 = 1
)

var (
	errTokenNotFound  = errors.New("token not found")
	errTokenIsExpired = errors.New("token expired")
	errTokenBackend   = errors.New("token backend unavailable")
)

// tokenRecord is the stored shape of a single-use token. CodeHash and the
// channel fields are populated only for MFA challenges.
type tokenRecord struct {
	Username    string
	ExpiresAt   int64
	Attempts    uint16
	CodeHash    [32]byte
	Channel     string
	Destination string
}

func (r *tokenRecord) hasCode() bool {
	var zero [32]byte
	return r.CodeHash != zero
}

// tokenStore keeps token rows past their logical expiry (for the retention
// window) so callers can tell an expired token from one that never existed.
// The per-user index key guarantees at most one live token per (user, type).
type tokenStore struct {
	redis     *redis.Client
	retention time.Duration
}

func newTokenStore(redisClient *redis.Client, cfg TokenConfig) *tokenStore {
	return &tokenStore{redis: redisClient, retention: cfg.ExpiredRetention}
}

func (s *tokenStore) key(tokenType TokenType, token string) string {
	return tokenKeyPrefix + ":" + string(tokenType) + ":" + token
}

func (s *tokenStore) indexKey(tokenType TokenType, username string) string {
	return tokenIndexKeyPrefix + ":" + string(tokenType) + ":" + username
}

// Create issues a fresh token of the given type, replacing any previous
// token of the same type held by the user.
func (s *tokenStore) Create(
	ctx context.Context,
	tokenType TokenType,
	record *tokenRecord,
	ttl time.Duration,
) (string, error) {
	token, err := internal.NewTokenID()
	if err != nil {
		return "", err
	}

	record.ExpiresAt = time.Now().Add(ttl).Unix()

	encoded, err := encodeTokenRecord(record)
	if err != nil {
		return "", err
	}

	storeTTL := ttl + s.retention
	indexKey := s.indexKey(tokenType, record.Username)

	prev, err := s.redis.Get(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %v", errTokenBackend, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prev != "" {
			pipe.Del(ctx, s.key(tokenType, prev))
		}
		pipe.Set(ctx, s.key(tokenType, token), encoded, storeTTL)
		pipe.Set(ctx, indexKey, token, storeTTL)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", errTokenBackend, err)
	}

	return token, nil
}

// Get returns the record for a token. An expired row is returned alongside
// errTokenIsExpired until the retention window deletes it.
func (s *tokenStore) Get(ctx context.Context, tokenType TokenType, token string) (*tokenRecord, error) {
	data, err := s.redis.Get(ctx, s.key(tokenType, token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", errTokenBackend, err)
	}

	record, err := decodeTokenRecord(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		return record, errTokenIsExpired
	}
	return record, nil
}

// Check reports validity without consuming the token.
func (s *tokenStore) Check(ctx context.Context, tokenType TokenType, token string) error {
	_, err := s.Get(ctx, tokenType, token)
	return err
}

// Consume validates and then removes the token and its index entry. An
// expired row is removed as well, with errTokenIsExpired still reported. A
// second consume of the same token reports errTokenNotFound.
func (s *tokenStore) Consume(ctx context.Context, tokenType TokenType, token string) (*tokenRecord, error) {
	record, getErr := s.Get(ctx, tokenType, token)
	if getErr != nil && !errors.Is(getErr, errTokenIsExpired) {
		return nil, getErr
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(tokenType, token))
		pipe.Del(ctx, s.indexKey(tokenType, record.Username))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errTokenBackend, err)
	}
	return record, getErr
}

// Delete removes a token without validity checks.
func (s *tokenStore) Delete(ctx context.Context, tokenType TokenType, token string, username string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(tokenType, token))
		pipe.Del(ctx, s.indexKey(tokenType, username))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errTokenBackend, err)
	}
	return nil
}

// RecordFailure bumps the attempt counter on a challenge token. The token is
// retained even once maxAttempts is reached, so later submissions can still
// be answered with the account's locked state rather than "invalid".
func (s *tokenStore) RecordFailure(
	ctx context.Context,
	tokenType TokenType,
	token string,
	maxAttempts int,
) (bool, error) {
	const maxRetries = 4
	key := s.key(tokenType, token)

	for i := 0; i < maxRetries; i++ {
		var exceeded bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeTokenRecord(data)
			if err != nil {
				return err
			}
			if time.Now().Unix() > record.ExpiresAt {
				return errTokenIsExpired
			}

			record.Attempts++
			exceeded = int(record.Attempts) >= maxAttempts

			ttl := time.Until(time.Unix(record.ExpiresAt, 0)) + s.retention
			updated, err := encodeTokenRecord(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, errTokenNotFound
			}
			if errors.Is(err, errTokenIsExpired) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", errTokenBackend, err)
		}
		return exceeded, nil
	}

	return false, errTokenNotFound
}

// ReplaceCode swaps the challenge code hash while keeping the attempt count,
// so resending a code never resets the wrong-code budget.
func (s *tokenStore) ReplaceCode(
	ctx context.Context,
	tokenType TokenType,
	token string,
	codeHash [32]byte,
) error {
	const maxRetries = 4
	key := s.key(tokenType, token)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeTokenRecord(data)
			if err != nil {
				return err
			}
			if time.Now().Unix() > record.ExpiresAt {
				return errTokenIsExpired
			}

			record.CodeHash = codeHash

			ttl := time.Until(time.Unix(record.ExpiresAt, 0)) + s.retention
			updated, err := encodeTokenRecord(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return errTokenNotFound
			}
			if errors.Is(err, errTokenIsExpired) {
				return err
			}
			return fmt.Errorf("%w: %v", errTokenBackend, err)
		}
		return nil
	}

	return errTokenNotFound
}

func encodeTokenRecord(record *tokenRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(tokenRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	for _, field := range []string{record.Username, record.Channel, record.Destination} {
		if len(field) > 65535 {
			return nil, errors.New("token record field length exceeded")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeTokenRecord(data []byte) (*tokenRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != tokenRecordVersion1 {
		return nil, errors.New("invalid token record version")
	}

	record := &tokenRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	for _, field := range []*string{&record.Username, &record.Channel, &record.Destination} {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		value := make([]byte, length)
		if _, err := io.ReadFull(reader, value); err != nil {
			return nil, err
		}
		*field = string(value)
	}

	return record, nil
}
