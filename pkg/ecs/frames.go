package ecs

import (
	"fmt"
	"slices"
	"strings"

	"github.com/argus-labs/lockstep/pkg/assert"
	"github.com/argus-labs/lockstep/pkg/pool"
	"github.com/rotisserie/eris"
)

const (
	// DefaultHistoryFrames is the number of past frames a restore can reach.
	DefaultHistoryFrames = 60
	// DefaultKeyframeInterval is the number of frames between full snapshots.
	DefaultKeyframeInterval = 4
)

// FrameHistory records every tick of a world and restores the world to a past frame.
//
// A full snapshot (keyframe) is kept every keyframe interval. Every tick also records a sync record
// holding its input and the hash of the resulting state. Restoring loads the closest keyframe at or
// before the target and replays the recorded input up to the target, checking every hash on the way.
type FrameHistory struct {
	repo       *EntityRepo
	graph      *ArchetypeGraph
	factory    ComponentFactory
	serializer FrameSerializer
	log        *WorldLogger

	historyFrames    uint64
	keyframeInterval uint64

	nextFrame    uint64
	historyStart uint64 // Oldest restorable frame

	hashes    map[uint64]uint64 // Frame -> state hash
	keyframes []*FrameSnapshot  // Ascending frame
	syncs     *syncRing

	latest           *FrameSnapshot
	latestIsKeyframe bool
	latestBytes      []byte // Serialized latest frame

	snapshots *pool.Pool[*FrameSnapshot]
	records   *pool.Pool[*SyncRecord]
}

// NewFrameHistory creates an empty history. The first recorded frame is frame 1.
func NewFrameHistory(
	repo *EntityRepo,
	graph *ArchetypeGraph,
	factory ComponentFactory,
	serializer FrameSerializer,
	log *WorldLogger,
	historyFrames, keyframeInterval uint64,
) (*FrameHistory, error) {
	if historyFrames == 0 {
		return nil, eris.New("history frames must be greater than 0")
	}
	if keyframeInterval == 0 {
		return nil, eris.New("keyframe interval must be greater than 0")
	}

	// Keyframes and sync records retained at once, plus slack for the frames in flight.
	keyframes := int(historyFrames/keyframeInterval) + 2 //nolint:gosec // small configuration values
	syncs := int(historyFrames+keyframeInterval) + 1     //nolint:gosec // small configuration values
	return &FrameHistory{
		repo:             repo,
		graph:            graph,
		factory:          factory,
		serializer:       serializer,
		log:              log,
		historyFrames:    historyFrames,
		keyframeInterval: keyframeInterval,
		nextFrame:        1,
		historyStart:     1,
		hashes:           make(map[uint64]uint64, syncs),
		keyframes:        make([]*FrameSnapshot, 0, keyframes),
		syncs:            newSyncRing(syncs),
		snapshots: pool.New(NewFrameSnapshot, nil,
			pool.WithName("frame-snapshot"), pool.WithInitialSize(keyframes+1)),
		records: pool.New(NewSyncRecord, nil,
			pool.WithName("sync-record"), pool.WithInitialSize(syncs)),
	}, nil
}

// isKeyframe returns true if frame gets a full snapshot.
func (h *FrameHistory) isKeyframe(frame uint64) bool {
	return (frame-1)%h.keyframeInterval == 0
}

// TakeFrameSnapshot records the current state as the next frame.
func (h *FrameHistory) TakeFrameSnapshot() error {
	return h.takeSnapshot(false)
}

// takeSnapshot records the current state as the next frame. force makes the frame a keyframe
// regardless of the interval.
func (h *FrameHistory) takeSnapshot(force bool) error {
	frame := h.nextFrame

	snap, err := h.snapshots.Get()
	if err != nil {
		return eris.Wrap(err, "failed to get frame snapshot")
	}
	if err := h.repo.CloneEntities(snap, frame, CloneAll); err != nil {
		return eris.Wrapf(err, "failed to clone frame %d", frame)
	}

	data, err := h.serializer.SerializeFrame(h.graph, snap, h.latestBytes[:0])
	if err != nil {
		return eris.Wrapf(err, "failed to serialize frame %d", frame)
	}
	h.latestBytes = data
	hash := h.serializer.Hash(data)
	h.hashes[frame] = hash

	rec, err := h.records.Get()
	if err != nil {
		return eris.Wrap(err, "failed to get sync record")
	}
	rec.Frame = frame
	rec.Hash = hash
	if rec.groups, err = h.repo.CloneInputGroups(rec.groups); err != nil {
		return eris.Wrapf(err, "failed to clone input of frame %d", frame)
	}
	h.syncs.pushBack(rec)

	if h.latest != nil && !h.latestIsKeyframe {
		if err := h.releaseSnapshot(h.latest); err != nil {
			return err
		}
	}
	keyframe := force || h.isKeyframe(frame)
	h.latest = snap
	h.latestIsKeyframe = keyframe
	h.nextFrame = frame + 1

	if keyframe {
		h.keyframes = append(h.keyframes, snap)
		if len(h.keyframes) == 1 {
			h.historyStart = frame
		}
		if err := h.evict(frame); err != nil {
			return err
		}
	}
	return nil
}

// evict drops the oldest keyframe, with its hashes and sync records, while the next keyframe alone
// still covers the oldest frame a restore must reach.
func (h *FrameHistory) evict(frame uint64) error {
	if frame <= h.historyFrames {
		return nil
	}
	minFrame := frame - h.historyFrames

	for len(h.keyframes) > 1 && h.keyframes[1].Frame <= minFrame {
		oldest, next := h.keyframes[0], h.keyframes[1]
		for f := oldest.Frame; f < next.Frame; f++ {
			delete(h.hashes, f)
		}
		for h.syncs.len() > 0 && h.syncs.front().Frame < next.Frame {
			if err := h.releaseRecord(h.syncs.popFront()); err != nil {
				return err
			}
		}
		h.keyframes[0] = nil
		h.keyframes = h.keyframes[1:]
		assert.That(oldest != h.latest, "evicting the latest frame")
		if err := h.releaseSnapshot(oldest); err != nil {
			return err
		}
		h.historyStart = next.Frame
	}
	return nil
}

// RestoreToFrame makes target the latest frame. replay is called with the recorded input of every
// frame between the closest keyframe and target, and must run a full tick for it.
func (h *FrameHistory) RestoreToFrame(target uint64, replay func(InputData) error) error {
	if target >= h.nextFrame || target < h.historyStart || len(h.keyframes) == 0 {
		return eris.Wrapf(ErrFrameOutOfRange, "frame %d, history [%d, %d)", target, h.historyStart, h.nextFrame)
	}

	// Keyframes after the target are never needed again.
	for last := h.keyframes[len(h.keyframes)-1]; last.Frame > target; last = h.keyframes[len(h.keyframes)-1] {
		h.keyframes = h.keyframes[:len(h.keyframes)-1]
		if last == h.latest {
			h.latest = nil
		}
		if err := h.releaseSnapshot(last); err != nil {
			return err
		}
	}
	assert.That(len(h.keyframes) > 0, "no keyframe at or before a frame within history")
	base := h.keyframes[len(h.keyframes)-1]
	h.keyframes = h.keyframes[:len(h.keyframes)-1]

	baseHash, ok := h.hashes[base.Frame]
	assert.That(ok, "keyframe has no recorded hash")

	// Sync records from the base keyframe on are detached. The base frame's record is rebuilt by
	// the forced snapshot below, the later ones drive the replay.
	detached := make([]*SyncRecord, 0, h.syncs.len())
	for h.syncs.len() > 0 && h.syncs.back().Frame >= base.Frame {
		detached = append(detached, h.syncs.popBack())
	}
	slices.Reverse(detached)
	defer func() {
		for _, rec := range detached {
			_ = h.releaseRecord(rec)
		}
	}()

	for f := base.Frame; f < h.nextFrame; f++ {
		delete(h.hashes, f)
	}
	if h.latest != nil && h.latest != base {
		if err := h.releaseSnapshot(h.latest); err != nil {
			return err
		}
	}
	h.latest = nil
	h.nextFrame = base.Frame

	if err := h.repo.ClearAndCopy(base); err != nil {
		return eris.Wrapf(err, "failed to load keyframe %d", base.Frame)
	}
	if err := h.releaseSnapshot(base); err != nil {
		return err
	}

	if err := h.takeSnapshot(true); err != nil {
		return err
	}
	if got := h.hashes[h.nextFrame-1]; got != baseHash {
		return eris.Wrapf(ErrDesyncDetected, "keyframe %d: expected %x, got %x", h.nextFrame-1, baseHash, got)
	}
	if err := h.repo.ClearInputEntities(); err != nil {
		return eris.Wrap(err, "failed to clear input entities")
	}

	for _, rec := range detached {
		if rec.Frame <= base.Frame || rec.Frame > target {
			continue
		}
		if err := replay(NewSyncInput(rec)); err != nil {
			return eris.Wrapf(err, "failed to replay frame %d", rec.Frame)
		}
		if got := h.hashes[rec.Frame]; got != rec.Hash {
			return eris.Wrapf(ErrDesyncDetected, "frame %d: expected %x, got %x", rec.Frame, rec.Hash, got)
		}
	}

	h.log.Event(LogSerializationDetails).Uint64("frame", target).Msg("restored")
	return nil
}

// LoadFrame discards the whole history and continues from snap. The loaded frame becomes the only
// keyframe and the oldest restorable frame. It returns the hash of the loaded state.
func (h *FrameHistory) LoadFrame(snap *FrameSnapshot) (uint64, error) {
	if snap.Frame == 0 {
		return 0, eris.Wrap(ErrFrameOutOfRange, "frames start at 1")
	}
	if err := h.releaseAll(); err != nil {
		return 0, err
	}
	if err := h.repo.ClearAndCopy(snap); err != nil {
		return 0, eris.Wrapf(err, "failed to load frame %d", snap.Frame)
	}

	h.nextFrame = snap.Frame
	if err := h.takeSnapshot(true); err != nil {
		return 0, err
	}
	h.historyStart = snap.Frame
	return h.hashes[snap.Frame], nil
}

func (h *FrameHistory) releaseAll() error {
	for _, k := range h.keyframes {
		if err := h.releaseSnapshot(k); err != nil {
			return err
		}
	}
	clear(h.keyframes)
	h.keyframes = h.keyframes[:0]
	if h.latest != nil && !h.latestIsKeyframe {
		if err := h.releaseSnapshot(h.latest); err != nil {
			return err
		}
	}
	h.latest = nil
	for h.syncs.len() > 0 {
		if err := h.releaseRecord(h.syncs.popFront()); err != nil {
			return err
		}
	}
	clear(h.hashes)
	return nil
}

func (h *FrameHistory) releaseSnapshot(s *FrameSnapshot) error {
	if err := s.Release(h.factory); err != nil {
		return err
	}
	return h.snapshots.Put(s)
}

func (h *FrameHistory) releaseRecord(rec *SyncRecord) error {
	if err := rec.Release(h.factory); err != nil {
		return err
	}
	return h.records.Put(rec)
}

// -------------------------------------------------------------------------------------------------
// Outward accessors
// -------------------------------------------------------------------------------------------------

// LatestFrameSerialized copies the serialized latest frame into buf and returns the buffer with the
// number of bytes written. A buffer that is too small is replaced by one twice the frame's size,
// keeping its old contents. With backAlign the frame is written at the end of the buffer, otherwise
// at the start.
func (h *FrameHistory) LatestFrameSerialized(backAlign bool, buf []byte) ([]byte, int) {
	if h.latest == nil {
		return buf, 0
	}
	n := len(h.latestBytes)
	if len(buf) < n {
		grown := make([]byte, 2*n)
		copy(grown, buf)
		buf = grown
	}
	if backAlign {
		copy(buf[len(buf)-n:], h.latestBytes)
	} else {
		copy(buf, h.latestBytes)
	}
	return buf, n
}

// LatestFrameSyncSerialized appends the serialized sync record of the latest frame to buf.
func (h *FrameHistory) LatestFrameSyncSerialized(buf []byte) ([]byte, error) {
	rec := h.syncs.back()
	if rec == nil || rec.Frame != h.nextFrame-1 {
		return buf, eris.Wrap(ErrFrameOutOfRange, "no frame recorded yet")
	}
	return h.serializer.SerializeSync(h.graph, rec, buf)
}

// LatestFrameHash returns the state hash of the latest frame.
func (h *FrameHistory) LatestFrameHash() (uint64, bool) {
	return h.FrameHash(h.nextFrame - 1)
}

// FrameHash returns the state hash of a retained frame.
func (h *FrameHistory) FrameHash(frame uint64) (uint64, bool) {
	hash, ok := h.hashes[frame]
	return hash, ok
}

// NextFrame returns the frame the next tick must be for.
func (h *FrameHistory) NextFrame() uint64 {
	return h.nextFrame
}

// LatestFrame returns the last recorded frame, or 0 if none.
func (h *FrameHistory) LatestFrame() uint64 {
	if h.latest == nil {
		return 0
	}
	return h.latest.Frame
}

// HistoryStart returns the oldest frame a restore can reach.
func (h *FrameHistory) HistoryStart() uint64 {
	return h.historyStart
}

// Keyframes returns the frames that hold full snapshots, in ascending order.
func (h *FrameHistory) Keyframes() []uint64 {
	frames := make([]uint64, len(h.keyframes))
	for i, k := range h.keyframes {
		frames[i] = k.Frame
	}
	return frames
}

// CloneLatestFrame deep copies the latest frame into target.
func (h *FrameHistory) CloneLatestFrame(target *FrameSnapshot) error {
	if h.latest == nil {
		return eris.Wrap(ErrFrameOutOfRange, "no frame recorded yet")
	}
	target.Frame = h.latest.Frame
	target.NextEntityID = h.latest.NextEntityID
	for _, src := range h.latest.entities {
		e, err := h.factory.GetEntityData()
		if err != nil {
			return eris.Wrap(err, "failed to get snapshot entity")
		}
		e.ID = src.ID
		e.New = src.New
		if err := copyGroup(h.factory, &e.ComponentGroup, &src.ComponentGroup); err != nil {
			return err
		}
		target.AddEntity(e)
	}
	return nil
}

// StateString renders the retained history and the latest frame.
func (h *FrameHistory) StateString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "next=%d start=%d keyframes=%v syncs=%d hashes=%d\n",
		h.nextFrame, h.historyStart, h.Keyframes(), h.syncs.len(), len(h.hashes))
	if h.latest != nil {
		b.WriteString(h.latest.String(h.factory))
	}
	return b.String()
}
