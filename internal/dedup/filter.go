// Package dedup provides the persistent probabilistic membership filter each
// sink consults before writing a record.
//
// A Filter never reports an inserted key as absent. It may report a key that
// was never inserted as present, at roughly the configured false-positive
// rate, which means a genuinely new record can occasionally be skipped.
package dedup

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"math"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	magic         = "WRBF"
	formatVersion = 1
	headerLen     = len(magic) + 1 + 4
	paramsLen     = 8 + 8
)

// Default sizing used when a sink is not configured explicitly.
const (
	DefaultExpectedEntries   = 100_000
	DefaultFalsePositiveRate = 0.001
)

// ErrCorrupt is returned by Unmarshal for data that is not a valid filter
// state: wrong magic, unknown version, checksum mismatch or truncation.
var ErrCorrupt = errors.New("corrupt filter state")

// Params size a new Filter.
type Params struct {
	ExpectedEntries   uint
	FalsePositiveRate float64
}

// DefaultParams returns the sizing used when none is configured.
func DefaultParams() Params {
	return Params{ExpectedEntries: DefaultExpectedEntries, FalsePositiveRate: DefaultFalsePositiveRate}
}

func (p Params) withDefaults() Params {
	if p.ExpectedEntries == 0 {
		p.ExpectedEntries = DefaultExpectedEntries
	}
	if p.FalsePositiveRate <= 0 || p.FalsePositiveRate >= 1 {
		p.FalsePositiveRate = DefaultFalsePositiveRate
	}
	return p
}

// Origin tells where a Filter returned by Open came from.
type Origin string

const (
	OriginNew       Origin = "new"       // built with New
	OriginLoaded    Origin = "loaded"    // decoded from stored state
	OriginFresh     Origin = "fresh"     // no stored state existed
	OriginRecovered Origin = "recovered" // stored state was unreadable and replaced
)

// Filter is a Bloom filter keyed by natural-key strings. It is not safe for
// concurrent use; a sink owns its filter for the duration of a write.
type Filter struct {
	params Params
	bloom  *bloom.BloomFilter
	origin Origin
}

// New returns an empty filter sized for p.
func New(p Params) *Filter {
	p = p.withDefaults()
	return &Filter{
		params: p,
		bloom:  bloom.NewWithEstimates(p.ExpectedEntries, p.FalsePositiveRate),
		origin: OriginNew,
	}
}

// MightContain reports whether key may have been inserted. A false result is
// definitive.
func (f *Filter) MightContain(key string) bool {
	return f.bloom.TestString(key)
}

// Insert records key as seen.
func (f *Filter) Insert(key string) {
	f.bloom.AddString(key)
}

// Params returns the sizing the filter was built with.
func (f *Filter) Params() Params { return f.params }

// Origin reports how the filter was obtained.
func (f *Filter) Origin() Origin { return f.origin }

// Len approximates the number of distinct keys inserted so far.
func (f *Filter) Len() uint32 { return f.bloom.ApproximatedSize() }

// MarshalBinary encodes the filter into the versioned, checksummed envelope:
//
//	"WRBF" | version (1 byte) | CRC-32 of payload (4 bytes, big endian) | payload
//
// where payload is expected entries (uint64), false-positive rate (float64
// bits) and the Bloom filter bits.
func (f *Filter) MarshalBinary() ([]byte, error) {
	var payload bytes.Buffer
	var params [paramsLen]byte
	binary.BigEndian.PutUint64(params[0:8], uint64(f.params.ExpectedEntries))
	binary.BigEndian.PutUint64(params[8:16], math.Float64bits(f.params.FalsePositiveRate))
	payload.Write(params[:])
	if _, err := f.bloom.WriteTo(&payload); err != nil {
		return nil, fmt.Errorf("encode bloom filter: %w", err)
	}

	out := make([]byte, headerLen, headerLen+payload.Len())
	copy(out, magic)
	out[len(magic)] = formatVersion
	binary.BigEndian.PutUint32(out[len(magic)+1:headerLen], crc32.ChecksumIEEE(payload.Bytes()))
	return append(out, payload.Bytes()...), nil
}

// Unmarshal decodes state produced by MarshalBinary. Any malformed input
// yields an error wrapping ErrCorrupt.
func Unmarshal(data []byte) (*Filter, error) {
	if len(data) < headerLen+paramsLen {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrCorrupt, len(data))
	}
	if string(data[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if v := data[len(magic)]; v != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	payload := data[headerLen:]
	if sum := binary.BigEndian.Uint32(data[len(magic)+1 : headerLen]); sum != crc32.ChecksumIEEE(payload) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	p := Params{
		ExpectedEntries:   uint(binary.BigEndian.Uint64(payload[0:8])),
		FalsePositiveRate: math.Float64frombits(binary.BigEndian.Uint64(payload[8:16])),
	}
	if p.ExpectedEntries == 0 || !(p.FalsePositiveRate > 0 && p.FalsePositiveRate < 1) {
		return nil, fmt.Errorf("%w: invalid sizing %d/%g", ErrCorrupt, p.ExpectedEntries, p.FalsePositiveRate)
	}
	bf := &bloom.BloomFilter{}
	r := bytes.NewReader(payload[paramsLen:])
	if _, err := bf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, r.Len())
	}
	// An empty bit array or zero hash count would report every key as new.
	if bf.Cap() == 0 || bf.K() == 0 || bf.BitSet().Len() != bf.Cap() {
		return nil, fmt.Errorf("%w: degenerate bloom filter m=%d k=%d", ErrCorrupt, bf.Cap(), bf.K())
	}
	return &Filter{params: p, bloom: bf, origin: OriginLoaded}, nil
}

// Open loads the filter persisted in store. Missing or unreadable state is
// never fatal: the filter starts empty and the problem is logged.
func Open(store Store, p Params, logger *slog.Logger) *Filter {
	data, err := store.Load()
	switch {
	case errors.Is(err, ErrNoState):
		logger.Debug("no dedup filter state, starting empty", "store", store.String())
		f := New(p)
		f.origin = OriginFresh
		return f
	case err != nil:
		logger.Warn("dedup filter state unreadable, starting empty", "store", store.String(), "error", err)
		f := New(p)
		f.origin = OriginRecovered
		return f
	}

	f, err := Unmarshal(data)
	if err != nil {
		logger.Warn("dedup filter state corrupt, starting empty", "store", store.String(), "error", err)
		f = New(p)
		f.origin = OriginRecovered
		return f
	}
	if want := p.withDefaults(); want != f.params {
		logger.Info("dedup filter state sized differently than configured, keeping stored sizing",
			"store", store.String(),
			"stored_expected_entries", f.params.ExpectedEntries,
			"configured_expected_entries", want.ExpectedEntries,
		)
	}
	return f
}

// Save persists f to store, replacing any previous state.
func Save(store Store, f *Filter) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	if err := store.Save(data); err != nil {
		return fmt.Errorf("save dedup filter to %s: %w", store, err)
	}
	return nil
}
