// Package ledger stores sparse weight snapshots keyed by (subject, lp denom, epoch).
//
// A snapshot holds until the next one for the same pair, so reading an epoch means finding
// the largest written epoch not after it. The aggregate weight of a denom is stored under
// types.AggregateSubject and goes through exactly the same read and write path.
package ledger

import (
	"encoding/binary"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/lpfarm/internal/store"
	"github.com/elys-network/lpfarm/internal/types"
)

var (
	prefixWeight       = []byte("w/")
	prefixTrackedDenom = []byte("w_denom/")
)

const sep = 0x00

// History reads and writes weight snapshots inside one store transaction.
type History struct {
	txn *store.Txn
}

// New wraps txn.
func New(txn *store.Txn) *History {
	return &History{txn: txn}
}

func pairPrefix(subject, lpDenom string) []byte {
	key := make([]byte, 0, len(prefixWeight)+len(subject)+len(lpDenom)+2)
	key = append(key, prefixWeight...)
	key = append(key, subject...)
	key = append(key, sep)
	key = append(key, lpDenom...)
	return append(key, sep)
}

func snapshotKey(subject, lpDenom string, epoch uint64) []byte {
	return append(pairPrefix(subject, lpDenom), store.Uint64Key(epoch)...)
}

func decodeSnapshot(prefix []byte, kv store.KV) (uint64, sdkmath.Int, error) {
	epoch := binary.BigEndian.Uint64(kv.Key[len(prefix):])
	var w sdkmath.Int
	if err := w.Unmarshal(kv.Value); err != nil {
		return 0, sdkmath.Int{}, fmt.Errorf("decode weight at epoch %d: %w", epoch, err)
	}
	return epoch, w, nil
}

// Latest returns the most recently written snapshot, or (0, 0) when there is none.
func (h *History) Latest(subject, lpDenom string) (uint64, sdkmath.Int, error) {
	prefix := pairPrefix(subject, lpDenom)
	kv, found, err := h.txn.SeekLast(prefix, snapshotKey(subject, lpDenom, ^uint64(0)))
	if err != nil {
		return 0, sdkmath.Int{}, err
	}
	if !found {
		return 0, sdkmath.ZeroInt(), nil
	}
	return decodeSnapshot(prefix, kv)
}

// At returns the weight in effect at epoch: the snapshot with the largest epoch <= epoch, or zero.
func (h *History) At(subject, lpDenom string, epoch uint64) (sdkmath.Int, error) {
	prefix := pairPrefix(subject, lpDenom)
	kv, found, err := h.txn.SeekLast(prefix, snapshotKey(subject, lpDenom, epoch))
	if err != nil {
		return sdkmath.Int{}, err
	}
	if !found {
		return sdkmath.ZeroInt(), nil
	}
	_, w, err := decodeSnapshot(prefix, kv)
	return w, err
}

// Get returns the snapshot written exactly at epoch.
func (h *History) Get(subject, lpDenom string, epoch uint64) (sdkmath.Int, bool, error) {
	raw, found, err := h.txn.Get(snapshotKey(subject, lpDenom, epoch))
	if err != nil || !found {
		return sdkmath.Int{}, false, err
	}
	var w sdkmath.Int
	if err := w.Unmarshal(raw); err != nil {
		return sdkmath.Int{}, false, fmt.Errorf("decode weight at epoch %d: %w", epoch, err)
	}
	return w, true, nil
}

// First returns the epoch of the oldest snapshot for the pair.
func (h *History) First(subject, lpDenom string) (uint64, bool, error) {
	prefix := pairPrefix(subject, lpDenom)
	kv, found, err := h.txn.SeekFirst(prefix)
	if err != nil || !found {
		return 0, false, err
	}
	epoch, _, err := decodeSnapshot(prefix, kv)
	return epoch, err == nil, err
}

// HasAny reports whether the pair has at least one snapshot.
func (h *History) HasAny(subject, lpDenom string) (bool, error) {
	_, found, err := h.First(subject, lpDenom)
	return found, err
}

// Set writes the snapshot at epoch, overwriting any previous value there.
func (h *History) Set(subject, lpDenom string, epoch uint64, w sdkmath.Int) error {
	if w.IsNil() || w.IsNegative() {
		return fmt.Errorf("%w: negative weight %s for %s/%s", types.ErrArithmetic, w, subject, lpDenom)
	}
	raw, err := w.Marshal()
	if err != nil {
		return fmt.Errorf("encode weight: %w", err)
	}
	if err := h.txn.Set(snapshotKey(subject, lpDenom, epoch), raw); err != nil {
		return err
	}
	if subject == types.AggregateSubject {
		return h.txn.Set(append(append([]byte{}, prefixTrackedDenom...), lpDenom...), []byte{})
	}
	return nil
}

// Clear removes every snapshot of the pair.
func (h *History) Clear(subject, lpDenom string) error {
	_, err := h.txn.DeletePrefix(pairPrefix(subject, lpDenom))
	return err
}

// TrackedDenoms lists every lp denom that ever had an aggregate snapshot.
func (h *History) TrackedDenoms() ([]string, error) {
	entries, err := h.txn.Scan(prefixTrackedDenom, nil, 0)
	if err != nil {
		return nil, err
	}
	denoms := make([]string, 0, len(entries))
	for _, kv := range entries {
		denoms = append(denoms, string(kv.Key[len(prefixTrackedDenom):]))
	}
	return denoms, nil
}

// ApplyHolderWeight records holder's new weight at targetEpoch and moves the aggregate of
// the denom by the same delta, so both subjects always change in the same transition.
func (h *History) ApplyHolderWeight(holder, lpDenom string, newWeight sdkmath.Int, targetEpoch uint64) error {
	if holder == types.AggregateSubject {
		return fmt.Errorf("%w: %s is reserved", types.ErrInvalidAddress, holder)
	}

	previous, err := h.At(holder, lpDenom, targetEpoch)
	if err != nil {
		return err
	}
	aggregate, err := h.At(types.AggregateSubject, lpDenom, targetEpoch)
	if err != nil {
		return err
	}

	updated := aggregate.Add(newWeight).Sub(previous)
	if updated.IsNegative() {
		return fmt.Errorf("%w: aggregate weight of %s would drop below zero (%s + %s - %s)",
			types.ErrArithmetic, lpDenom, aggregate, newWeight, previous)
	}

	if err := h.Set(holder, lpDenom, targetEpoch, newWeight); err != nil {
		return err
	}
	return h.Set(types.AggregateSubject, lpDenom, targetEpoch, updated)
}

// ForwardFill copies the value in effect at epoch into an explicit snapshot for every tracked
// denom that has none there yet. Running it twice for the same epoch changes nothing.
func (h *History) ForwardFill(epoch uint64) (int, error) {
	denoms, err := h.TrackedDenoms()
	if err != nil {
		return 0, err
	}
	filled := 0
	for _, denom := range denoms {
		if _, found, err := h.Get(types.AggregateSubject, denom, epoch); err != nil {
			return filled, err
		} else if found {
			continue
		}
		w, err := h.At(types.AggregateSubject, denom, epoch)
		if err != nil {
			return filled, err
		}
		if err := h.Set(types.AggregateSubject, denom, epoch, w); err != nil {
			return filled, err
		}
		filled++
	}
	return filled, nil
}

type point struct {
	epoch  uint64
	weight sdkmath.Int
}

// Series is a window of one pair's history loaded with a single scan.
type Series struct {
	from   uint64
	base   sdkmath.Int
	points []point
}

// Series loads the pair's history for epochs [from, to].
func (h *History) Series(subject, lpDenom string, from, to uint64) (*Series, error) {
	base, err := h.At(subject, lpDenom, from)
	if err != nil {
		return nil, err
	}
	s := &Series{from: from, base: base}
	if to <= from {
		return s, nil
	}

	prefix := pairPrefix(subject, lpDenom)
	entries, err := h.txn.ScanRange(prefix, snapshotKey(subject, lpDenom, from+1), snapshotKey(subject, lpDenom, to))
	if err != nil {
		return nil, err
	}
	for _, kv := range entries {
		epoch, w, err := decodeSnapshot(prefix, kv)
		if err != nil {
			return nil, err
		}
		s.points = append(s.points, point{epoch: epoch, weight: w})
	}
	return s, nil
}

// At returns the weight in effect at epoch, which must not precede the window start.
func (s *Series) At(epoch uint64) sdkmath.Int {
	i := sort.Search(len(s.points), func(i int) bool { return s.points[i].epoch > epoch })
	if i == 0 {
		return s.base
	}
	return s.points[i-1].weight
}
