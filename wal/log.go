package wal

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/vecstore/vecstore/cmn"
	"github.com/vecstore/vecstore/cmn/cos"
)

// lengthPrefixSize is the byte width of the on-disk framing's length
// prefix: a little-endian uint32 byte count followed by that many
// msgp-encoded Record bytes.
const lengthPrefixSize = 4

// Log is one shard's append-only operation log (spec.md §4.7). Appends
// are fsync'd before returning so a crash never loses an acknowledged
// write; Replay feeds every record at or after a sequence number back to
// the caller in order.
type Log struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	nextSeq uint64
}

// Open opens (creating if absent) the log file at path, fast-forwarding
// nextSeq past whatever records are already on disk.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, cmn.NewServiceError(err, "open wal %s", path)
	}
	l := &Log{path: path, file: f}
	if err := l.Replay(0, func(r Record) error {
		l.nextSeq = r.Seq + 1
		return nil
	}); err != nil {
		f.Close()
		return nil, cmn.NewServiceError(err, "replay wal %s during open", path)
	}
	return l, nil
}

// Append writes one record and fsyncs the file, returning its assigned
// sequence number.
func (l *Log) Append(op Op, payload []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.nextSeq
	rec := Record{Seq: seq, Op: op, Payload: payload}
	buf, err := rec.MarshalMsg(nil)
	if err != nil {
		return 0, cmn.NewServiceError(err, "wal %s: encode record", l.path)
	}
	if _, err := l.file.Seek(0, io.SeekEnd); err != nil {
		return 0, cmn.NewServiceError(err, "wal %s: seek to end", l.path)
	}
	var lenBuf [lengthPrefixSize]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(buf)))
	if _, err := l.file.Write(lenBuf[:]); err != nil {
		return 0, cmn.NewServiceError(err, "wal %s: write length prefix", l.path)
	}
	if _, err := l.file.Write(buf); err != nil {
		return 0, cmn.NewServiceError(err, "wal %s: write record", l.path)
	}
	if err := l.file.Sync(); err != nil {
		return 0, cmn.NewServiceError(err, "wal %s: fsync", l.path)
	}
	l.nextSeq = seq + 1
	return seq, nil
}

// Replay calls fn for every record with Seq >= from, in ascending order.
// UpdateOp replay through fn must itself be idempotent under Upsert's
// version check (spec.md §4.2 invariant) — Replay does not deduplicate.
func (l *Log) Replay(from uint64, fn func(Record) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return cmn.NewServiceError(err, "wal %s: seek to start", l.path)
	}
	r := bufio.NewReader(l.file)
	var lenBuf [lengthPrefixSize]byte
	for {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if cos.IsEOF(err) {
				break
			}
			return cmn.NewServiceError(err, "wal %s: read length prefix", l.path)
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			if cos.IsEOF(err) {
				break // a torn trailing write from a crash mid-append
			}
			return cmn.NewServiceError(err, "wal %s: read record", l.path)
		}
		var rec Record
		if _, err := rec.UnmarshalMsg(buf); err != nil {
			return cmn.NewServiceError(err, "wal %s: decode record", l.path)
		}
		if rec.Seq < from {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Truncate drops every record with Seq <= upTo, compacting the log once
// a snapshot has durably captured everything through upTo (spec.md §4.7,
// §6 snapshot). It rewrites the file rather than punching holes, which
// is the simple and correct option for a log this implementation expects
// to stay small between snapshots.
func (l *Log) Truncate(upTo uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tmpPath := l.path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return cmn.NewServiceError(err, "wal %s: open compaction file", l.path)
	}

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return cmn.NewServiceError(err, "wal %s: seek to start", l.path)
	}
	r := bufio.NewReader(l.file)
	var lenBuf [lengthPrefixSize]byte
	for {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if cos.IsEOF(err) {
				break
			}
			tmp.Close()
			return cmn.NewServiceError(err, "wal %s: read length prefix during compaction", l.path)
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			tmp.Close()
			if cos.IsEOF(err) {
				break
			}
			return cmn.NewServiceError(err, "wal %s: read record during compaction", l.path)
		}
		var rec Record
		if _, err := rec.UnmarshalMsg(buf); err != nil {
			tmp.Close()
			return cmn.NewServiceError(err, "wal %s: decode record during compaction", l.path)
		}
		if rec.Seq <= upTo {
			continue
		}
		if _, err := tmp.Write(lenBuf[:]); err != nil {
			tmp.Close()
			return err
		}
		if _, err := tmp.Write(buf); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return cmn.NewServiceError(err, "wal %s: fsync compaction file", l.path)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return cmn.NewServiceError(err, "wal %s: rename compaction file into place", l.path)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return cmn.NewServiceError(err, "wal %s: reopen after compaction", l.path)
	}
	l.file = f
	return nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// NextSeq is the sequence number the next Append call will assign.
func (l *Log) NextSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextSeq
}
