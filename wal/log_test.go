package wal

import (
	"path/filepath"
	"testing"
)

func TestAppendAndReplayInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shard.wal")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	for i := 0; i < 5; i++ {
		if _, err := l.Append(UpsertPoints, []byte{byte(i)}); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	var got []Record
	if err := l.Replay(0, func(r Record) error {
		got = append(got, r)
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("replayed %d records, want 5", len(got))
	}
	for i, r := range got {
		if r.Seq != uint64(i) || r.Op != UpsertPoints || len(r.Payload) != 1 || r.Payload[0] != byte(i) {
			t.Fatalf("record %d = %+v, want Seq=%d Op=UpsertPoints Payload=[%d]", i, r, i, i)
		}
	}
}

func TestReplayFromSkipsEarlierRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shard.wal")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()
	for i := 0; i < 10; i++ {
		_, _ = l.Append(UpsertPoints, nil)
	}
	var seqs []uint64
	if err := l.Replay(7, func(r Record) error {
		seqs = append(seqs, r.Seq)
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(seqs) != 3 || seqs[0] != 7 {
		t.Fatalf("Replay(7) = %v, want [7 8 9]", seqs)
	}
}

func TestTruncateDropsCompactedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shard.wal")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()
	for i := 0; i < 5; i++ {
		_, _ = l.Append(UpsertPoints, nil)
	}
	if err := l.Truncate(2); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	var seqs []uint64
	if err := l.Replay(0, func(r Record) error {
		seqs = append(seqs, r.Seq)
		return nil
	}); err != nil {
		t.Fatalf("Replay after truncate: %v", err)
	}
	if len(seqs) != 2 || seqs[0] != 3 || seqs[1] != 4 {
		t.Fatalf("Replay after Truncate(2) = %v, want [3 4]", seqs)
	}
}

func TestOpenResumesNextSeqFromExistingLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shard.wal")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 3; i++ {
		_, _ = l.Append(UpsertPoints, nil)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.NextSeq() != 3 {
		t.Fatalf("NextSeq() after reopen = %d, want 3", reopened.NextSeq())
	}
	seq, err := reopened.Append(DeletePoints, nil)
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if seq != 3 {
		t.Fatalf("Append after reopen assigned seq %d, want 3", seq)
	}
}
