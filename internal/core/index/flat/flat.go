// Package flat is an exact inner-product index over L2-normalized vectors.
//
// Corpora are per-document and small (low thousands of rows), so search is a
// full scan. Similarities are accumulated in float64 in row order, which keeps
// results identical across platforms and across a save/load cycle.
package flat

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"sort"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrChecksumMismatch  = errors.New("flat index checksum mismatch")
)

const (
	magic         = "RMFL"
	formatVersion = uint16(1)
	headerSize    = 4 + 2 + 4 + 4
	trailerSize   = 4
)

// Index stores vectors row-major. Row i is chunk i.
type Index struct {
	dim  int
	rows int
	data []float32
}

func New(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("flat index dimension must be positive, got %d", dim)
	}
	return &Index{dim: dim}, nil
}

// Add appends vectors in order. Either all vectors are added or none.
func (idx *Index) Add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != idx.dim {
			return fmt.Errorf("%w: row %d has %d, want %d", ErrDimensionMismatch, i, len(v), idx.dim)
		}
		for j, x := range v {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return fmt.Errorf("row %d component %d is not finite", i, j)
			}
		}
	}
	for _, v := range vectors {
		idx.data = append(idx.data, v...)
	}
	idx.rows += len(vectors)
	return nil
}

func (idx *Index) Len() int { return idx.rows }

func (idx *Index) Dim() int { return idx.dim }

// Row returns a copy of row i.
func (idx *Index) Row(i int) []float32 {
	out := make([]float32, idx.dim)
	copy(out, idx.data[i*idx.dim:(i+1)*idx.dim])
	return out
}

// Search returns up to limit rows sorted by similarity descending, ties by
// ascending row id. limit <= 0 means all rows.
func (idx *Index) Search(query []float32, limit int) ([]float64, []int, error) {
	if len(query) != idx.dim {
		return nil, nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(query), idx.dim)
	}
	if limit <= 0 || limit > idx.rows {
		limit = idx.rows
	}

	ids := make([]int, idx.rows)
	sims := make([]float64, idx.rows)
	for i := 0; i < idx.rows; i++ {
		ids[i] = i
		sims[i] = dot(query, idx.data[i*idx.dim:(i+1)*idx.dim])
	}
	sort.SliceStable(ids, func(a, b int) bool {
		sa, sb := sims[ids[a]], sims[ids[b]]
		if sa != sb {
			return sa > sb
		}
		return ids[a] < ids[b]
	})

	ids = ids[:limit]
	outSims := make([]float64, limit)
	for i, id := range ids {
		outSims[i] = sims[id]
	}
	return outSims, ids, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// MarshalBinary layout (little endian):
// magic[4] version[u16] dim[u32] rows[u32] data[rows*dim f32] crc32[u32].
func (idx *Index) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(headerSize + len(idx.data)*4 + trailerSize)
	buf.WriteString(magic)
	_ = binary.Write(&buf, binary.LittleEndian, formatVersion)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(idx.dim))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(idx.rows))

	row := make([]byte, 4)
	for _, x := range idx.data {
		binary.LittleEndian.PutUint32(row, math.Float32bits(x))
		buf.Write(row)
	}

	sum := crc32.ChecksumIEEE(buf.Bytes())
	_ = binary.Write(&buf, binary.LittleEndian, sum)
	return buf.Bytes(), nil
}

func (idx *Index) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize+trailerSize {
		return fmt.Errorf("flat index too short: %d bytes", len(data))
	}
	if string(data[:4]) != magic {
		return fmt.Errorf("flat index bad magic %q", data[:4])
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != formatVersion {
		return fmt.Errorf("unsupported flat index version %d", v)
	}

	body := data[:len(data)-trailerSize]
	want := binary.LittleEndian.Uint32(data[len(data)-trailerSize:])
	if got := crc32.ChecksumIEEE(body); got != want {
		return fmt.Errorf("%w: expected 0x%08x, got 0x%08x", ErrChecksumMismatch, want, got)
	}

	dim := int(binary.LittleEndian.Uint32(data[6:10]))
	rows := int(binary.LittleEndian.Uint32(data[10:14]))
	if dim <= 0 {
		return fmt.Errorf("flat index dimension must be positive, got %d", dim)
	}
	payload := body[headerSize:]
	if len(payload) != rows*dim*4 {
		return fmt.Errorf("flat index payload is %d bytes, want %d", len(payload), rows*dim*4)
	}

	values := make([]float32, rows*dim)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
	}
	idx.dim = dim
	idx.rows = rows
	idx.data = values
	return nil
}
