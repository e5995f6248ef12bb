// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package store

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bpowers/chainstore/errors"
	"github.com/bpowers/chainstore/storage"
	"github.com/bpowers/chainstore/tables"
)

// Content and lock file names, ported directly from
// original_source/src/store.cpp's file-name constants. spend_table has
// no upstream counterpart -- it supplements the distilled spec per
// tables.Spend's grounding in spend_database.hpp.
const (
	flushLockFile     = "flush_lock"
	exclusiveLockFile = "exclusive_lock"

	headerIndexFile = "header_index"
	blockIndexFile  = "block_index"
	blockTableFile  = "block_table"

	transactionIndexFile = "transaction_index"
	transactionTableFile = "transaction_table"

	spendTableFile = "spend_table"

	historyTableFile = "history_table"
	historyRowsFile  = "history_rows"
)

// contentFiles returns the fixed list of content files store.cpp's
// create() writes, in its short-circuit-on-first-failure order.
func contentFiles(cfg Config) []string {
	files := []string{
		headerIndexFile, blockIndexFile, blockTableFile,
		transactionIndexFile, transactionTableFile,
		spendTableFile,
	}
	if cfg.IndexAddresses {
		files = append(files, historyTableFile, historyRowsFile)
	}
	return files
}

// Store owns every content and lock file for one chainstore directory,
// grounded line-for-line on original_source/src/store.cpp: Create maps
// to store::create(), Open/Close to store::open()/close(), and
// BeginWrite/EndWrite to store::begin_write()/end_write().
type Store struct {
	cfg Config
	log zerolog.Logger

	exclusiveLock *storage.Flock
	flushLock     *storage.Flock

	headerIndex *storage.File
	blockIndex  *storage.File
	blockTable  *storage.File

	transactionIndex *storage.File
	transactionTable *storage.File

	spendTable *storage.File

	historyTable *storage.File
	historyRows  *storage.File

	Block       *tables.Block
	Transaction *tables.Transaction
	Spend       *tables.Spend
	History     *tables.History // nil unless cfg.IndexAddresses
}

// New describes but does not create, open, or start a Store.
func New(cfg Config) *Store {
	cfg = cfg.withDefaults()
	return &Store{
		cfg: cfg,
		log: log.With().Str("directory", cfg.Directory).Logger(),
	}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.cfg.Directory, name)
}

// Create initializes every content file for a brand-new store. It
// fails with errors.FileNotFound if the directory is missing and with
// errors.AlreadyExists if a content file already exists, and creates files in store.cpp's
// create() order, stopping at the first failure and leaving whatever
// files were already created in place -- exactly store.cpp's
// short-circuited boolean conjunction, expressed as sequential error
// returns instead.
func (s *Store) Create() error {
	if fi, err := os.Stat(s.cfg.Directory); err != nil || !fi.IsDir() {
		return errors.New("store.Store.Create", errors.FileNotFound, err)
	}

	for _, name := range contentFiles(s.cfg) {
		if err := storage.Create(s.path(name)); err != nil {
			return err
		}
	}

	if err := s.openContentFiles(); err != nil {
		return err
	}
	if err := s.createTables(); err != nil {
		return err
	}
	if err := s.Flush(); err != nil {
		return err
	}
	if err := s.Close(); err != nil {
		return err
	}

	s.log.Info().Msg("store.create")
	return nil
}

func (s *Store) createTables() error {
	s.Block = tables.NewBlock(s.headerIndex, s.blockIndex, s.blockTable, s.cfg.BlockHeaderSize, s.cfg.BlockTableBuckets)
	if err := s.Block.Create(); err != nil {
		return err
	}

	s.Transaction = tables.NewTransaction(s.transactionIndex, s.transactionTable, s.cfg.TransactionTableBuckets)
	if err := s.Transaction.Create(); err != nil {
		return err
	}

	s.Spend = tables.NewSpend(s.spendTable, s.cfg.SpendTableBuckets)
	if err := s.Spend.Create(); err != nil {
		return err
	}

	if s.cfg.IndexAddresses {
		s.History = tables.NewHistory(s.historyTable, s.historyRows, s.cfg.HistoryTableBuckets)
		if err := s.History.Create(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) openContentFiles() error {
	opts := storage.Options{GrowthFactor: s.cfg.FileGrowthRate}

	open := func(name string) (*storage.File, error) {
		return storage.Open(s.path(name), opts)
	}

	var err error
	if s.headerIndex, err = open(headerIndexFile); err != nil {
		return err
	}
	if s.blockIndex, err = open(blockIndexFile); err != nil {
		return err
	}
	if s.blockTable, err = open(blockTableFile); err != nil {
		return err
	}
	if s.transactionIndex, err = open(transactionIndexFile); err != nil {
		return err
	}
	if s.transactionTable, err = open(transactionTableFile); err != nil {
		return err
	}
	if s.spendTable, err = open(spendTableFile); err != nil {
		return err
	}
	if s.cfg.IndexAddresses {
		if s.historyTable, err = open(historyTableFile); err != nil {
			return err
		}
		if s.historyRows, err = open(historyRowsFile); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) startTables() error {
	s.Block = tables.NewBlock(s.headerIndex, s.blockIndex, s.blockTable, s.cfg.BlockHeaderSize, s.cfg.BlockTableBuckets)
	if err := s.Block.Start(); err != nil {
		return err
	}

	s.Transaction = tables.NewTransaction(s.transactionIndex, s.transactionTable, s.cfg.TransactionTableBuckets)
	if err := s.Transaction.Start(); err != nil {
		return err
	}

	s.Spend = tables.NewSpend(s.spendTable, s.cfg.SpendTableBuckets)
	if err := s.Spend.Start(); err != nil {
		return err
	}

	if s.cfg.IndexAddresses {
		s.History = tables.NewHistory(s.historyTable, s.historyRows, s.cfg.HistoryTableBuckets)
		if err := s.History.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Open acquires the store's locks and memory-maps every content file,
// porting store::open()'s three-clause chain -- a non-blocking
// exclusive-lock attempt that fails if another process already has the
// store open, then a non-blocking flush-lock probe that detects a prior
// dirty shutdown, then (in deferred-flush mode) converting that same
// lock to a shared hold for the session -- into sequential Go error
// checks. Any failure unwinds whatever locks and mappings were already
// acquired.
func (s *Store) Open() error {
	var err error
	if s.exclusiveLock, err = storage.OpenFlock(s.path(exclusiveLockFile)); err != nil {
		return err
	}
	if err := s.exclusiveLock.TryLock(); err != nil {
		s.log.Warn().Msg("store.lock_held")
		return err
	}

	if s.flushLock, err = storage.OpenFlock(s.path(flushLockFile)); err != nil {
		_ = s.exclusiveLock.Unlock()
		return err
	}
	if err := s.flushLock.TryLock(); err != nil {
		s.log.Warn().Msg("store.lock_held")
		_ = s.exclusiveLock.Unlock()
		return err
	}

	if !s.cfg.FlushWrites {
		if err := s.flushLock.LockShared(); err != nil {
			_ = s.exclusiveLock.Unlock()
			return err
		}
	} else {
		// The probe above only needed to detect a dirty prior
		// shutdown; flush-per-write mode holds the flush lock
		// per-write via BeginWrite/EndWrite, not for the session.
		if err := s.flushLock.Unlock(); err != nil {
			_ = s.exclusiveLock.Unlock()
			return err
		}
	}

	if err := s.openContentFiles(); err != nil {
		_ = s.Close()
		return err
	}
	if err := s.startTables(); err != nil {
		_ = s.Close()
		return err
	}

	s.log.Info().Msg("store.open")
	return nil
}

// Close releases the shared flush-lock hold (if held) and then the
// exclusive lock, in that order, mirroring store::close(). Content
// files are unmapped and truncated to their committed watermark.
func (s *Store) Close() error {
	for _, f := range []*storage.File{
		s.headerIndex, s.blockIndex, s.blockTable,
		s.transactionIndex, s.transactionTable,
		s.spendTable, s.historyTable, s.historyRows,
	} {
		if f != nil {
			_ = f.Close()
		}
	}

	if !s.cfg.FlushWrites && s.flushLock != nil {
		if err := s.flushLock.Unlock(); err != nil {
			return err
		}
	}
	if s.flushLock != nil {
		_ = s.flushLock.Close()
	}
	if s.exclusiveLock != nil {
		if err := s.exclusiveLock.Unlock(); err != nil {
			return err
		}
		_ = s.exclusiveLock.Close()
	}
	s.log.Info().Msg("store.close")
	return nil
}

// BeginWrite marks the start of a logical write in flush-per-write
// mode, holding the flush lock shared for the duration -- a no-op in
// deferred-flush mode, exactly store::begin_write().
func (s *Store) BeginWrite() error {
	if !s.cfg.FlushWrites {
		return nil
	}
	return s.flushLock.LockShared()
}

// EndWrite flushes and releases the flush lock acquired by BeginWrite
// in flush-per-write mode -- a no-op in deferred-flush mode, exactly
// store::end_write().
func (s *Store) EndWrite() error {
	if !s.cfg.FlushWrites {
		return nil
	}
	if err := s.Flush(); err != nil {
		return err
	}
	return s.flushLock.Unlock()
}

// Flush commits every table's watermark and syncs its backing storage.
func (s *Store) Flush() error {
	tabs := []interface{ Flush() error }{s.Block, s.Transaction, s.Spend}
	if s.History != nil {
		tabs = append(tabs, s.History)
	}
	for _, t := range tabs {
		if err := t.Flush(); err != nil {
			return err
		}
	}
	s.log.Info().Msg("store.flush")
	return nil
}
