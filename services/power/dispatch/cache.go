// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

// =============================================================================
// Result cache
// =============================================================================
//
// Storage layout:
//
//	power/result/v1/{sha256(test id + canonical params)}  ->  gob []float64
//	                                                          TTL: configured

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	badgerstore "github.com/AleutianAI/PowerFOSS/services/power/storage/badger"
	"github.com/AleutianAI/PowerFOSS/services/power/validate"
)

// resultCacheDefaultTTL is the lifetime of a cached result.
const resultCacheDefaultTTL = 24 * time.Hour

// resultCacheKeyPrefix is versioned so a format change cannot collide.
const resultCacheKeyPrefix = "power/result/v1/"

var errCacheMiss = errors.New("cache miss")

// ResultCache stores calculation results by request key.
//
// Thread Safety: Implementations must be safe for concurrent use.
type ResultCache interface {
	// Load returns (result, true, nil) on hit and (_, false, nil) on miss.
	Load(ctx context.Context, key string) (CalculationResult, bool, error)

	// Save stores result under key.
	Save(ctx context.Context, key string, result CalculationResult) error
}

// BadgerResultCache implements ResultCache on BadgerDB with native TTL.
//
// The DB is owned by the caller.
type BadgerResultCache struct {
	db     *badgerstore.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewBadgerResultCache creates a cache over db. A ttl of zero uses 24h.
func NewBadgerResultCache(db *badgerstore.DB, ttl time.Duration, logger *slog.Logger) (*BadgerResultCache, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if ttl <= 0 {
		ttl = resultCacheDefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerResultCache{db: db, ttl: ttl, logger: logger}, nil
}

// Load implements ResultCache.
func (s *BadgerResultCache) Load(ctx context.Context, key string) (CalculationResult, bool, error) {
	var raw []byte
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(resultCacheKey(key))
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return errCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get cache key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copy value: %w", err)
		}
		return nil
	})
	if errors.Is(err, errCacheMiss) {
		s.logger.Debug("result cache: miss", slog.String("key", shortKey(key)))
		return CalculationResult{}, false, nil
	}
	if err != nil {
		return CalculationResult{}, false, fmt.Errorf("result cache load: %w", err)
	}

	var values []float64
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&values); err != nil {
		return CalculationResult{}, false, fmt.Errorf("result cache decode: %w", err)
	}
	s.logger.Debug("result cache: hit", slog.String("key", shortKey(key)))
	return CalculationResult{Values: values}, true, nil
}

// Save implements ResultCache.
func (s *BadgerResultCache) Save(ctx context.Context, key string, result CalculationResult) error {
	if len(result.Values) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(result.Values); err != nil {
		return fmt.Errorf("result cache encode: %w", err)
	}

	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.SetEntry(dgbadger.NewEntry(resultCacheKey(key), buf.Bytes()).WithTTL(s.ttl))
	})
	if err != nil {
		return fmt.Errorf("result cache save: %w", err)
	}
	return nil
}

// cacheKey hashes the test id and parameters in sorted name order.
// Numbers use the shortest exact representation so 0.8 and 0.80 agree.
func cacheKey(req validate.ValidatedRequest) string {
	names := make([]string, 0, len(req.Params))
	for name := range req.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	fmt.Fprintf(h, "test=%s\n", req.TestID)
	for _, name := range names {
		var value string
		switch v := req.Params[name].(type) {
		case float64:
			value = "n:" + strconv.FormatFloat(v, 'g', -1, 64)
		case string:
			value = "s:" + v
		default:
			value = fmt.Sprintf("x:%v", v)
		}
		fmt.Fprintf(h, "%s\t%s\n", name, value)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func resultCacheKey(key string) []byte {
	return []byte(resultCacheKeyPrefix + key)
}

func shortKey(k string) string {
	if len(k) > 8 {
		return k[:8] + "..."
	}
	return k
}
