package vstorage

import (
	"encoding/binary"
	"math"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/vecstore/vecstore/cmn"
)

// mmapStorage is the immutable, memory-mapped VectorStorage an optimized
// segment switches to once it crosses memmap_threshold (spec.md §4.2,
// §6). It is built once from a RAM storage and is read-only thereafter —
// matching "HNSW graph ... read-only after build" and the Indexing
// optimizer's promotion contract.
type mmapStorage struct {
	dim    int
	metric Metric
	file   *os.File
	data   []byte // mmap-ed region
	n      int
	mu     sync.Mutex
}

const float32Bytes = 4

// BuildMmap writes src's live vectors to path and maps the result,
// grounded on the teacher's volume package pattern of building an
// on-disk metadata file once and keeping it mapped for the process
// lifetime.
func BuildMmap(path string, src Storage) (Storage, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, cmn.NewServiceError(err, "create mmap vector file %s", path)
	}
	dim := src.Dim()
	n := src.Size()
	buf := make([]byte, dim*float32Bytes)
	for off := 0; off < n; off++ {
		v, err := src.Get(uint32(off))
		if err != nil {
			// offset was never written (tombstoned before promotion); zero-fill
			for i := 0; i < dim; i++ {
				binary.LittleEndian.PutUint32(buf[i*float32Bytes:], 0)
			}
		} else {
			for i, f32 := range v {
				binary.LittleEndian.PutUint32(buf[i*float32Bytes:], math.Float32bits(f32))
			}
		}
		if _, err := f.Write(buf); err != nil {
			f.Close()
			return nil, cmn.NewServiceError(err, "write mmap vector file %s", path)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, cmn.NewServiceError(err, "fsync mmap vector file %s", path)
	}
	return OpenMmap(path, dim, src.Metric(), n)
}

// OpenMmap maps an existing on-disk vector file (e.g. on segment reload).
func OpenMmap(path string, dim int, metric Metric, n int) (Storage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cmn.NewServiceError(err, "open mmap vector file %s", path)
	}
	size := n * dim * float32Bytes
	if size == 0 {
		return &mmapStorage{dim: dim, metric: metric, file: f, n: 0}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, cmn.NewServiceError(err, "mmap vector file %s", path)
	}
	return &mmapStorage{dim: dim, metric: metric, file: f, data: data, n: n}, nil
}

func (m *mmapStorage) Dim() int       { return m.dim }
func (m *mmapStorage) Metric() Metric { return m.metric }
func (m *mmapStorage) Size() int      { return m.n }

func (m *mmapStorage) Get(offset uint32) ([]float32, error) {
	if int(offset) >= m.n {
		return nil, cmn.NewNotFound("vector at offset %d", offset)
	}
	start := int(offset) * m.dim * float32Bytes
	out := make([]float32, m.dim)
	for i := 0; i < m.dim; i++ {
		bits := binary.LittleEndian.Uint32(m.data[start+i*float32Bytes:])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

func (m *mmapStorage) Put(uint32, []float32) error {
	return cmn.NewBadRequest("mmap vector storage is read-only")
}

func (m *mmapStorage) Flush() error { return nil }

func (m *mmapStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.data != nil {
		err = unix.Munmap(m.data)
		m.data = nil
	}
	if m.file != nil {
		m.file.Close()
	}
	return err
}
