// Package tracker assigns a stable per-video track identity to detections
// across frames. The matching cost matrix and prediction idea are grounded
// on the IOU/BuildMatchingMatrix SORT-style tracker in the example pack,
// adapted here to greedy IoU assignment (no Hungarian solver dependency)
// and a three-state lifecycle instead of a flat track list.
package tracker

import (
	"sort"

	"github.com/technosupport/herdvision/internal/detector"
)

type State string

const (
	StateTentative State = "Tentative"
	StateConfirmed State = "Confirmed"
	StateLost      State = "Lost"
)

// Track is one continuously-matched object within a single video's frame
// sequence. TrackID is scoped to the video, not a cross-job identity — that
// resolution belongs to the re-id package.
type Track struct {
	ID          int
	State       State
	Hits        int
	Age         int // frames since last match
	Boxes       []detector.BBox // most recent observations, capped
	LastBox     detector.BBox
	Confidence  float64
}

const maxStableBoxes = 5

// StableBox returns the mean of the last up-to-5 matched boxes, smoothing
// single-frame jitter out of the box reported to downstream consumers.
func (t *Track) StableBox() detector.BBox {
	n := len(t.Boxes)
	if n == 0 {
		return t.LastBox
	}
	start := 0
	if n > maxStableBoxes {
		start = n - maxStableBoxes
	}
	window := t.Boxes[start:]
	var sx, sy, sw, sh float64
	for _, b := range window {
		sx += b.X
		sy += b.Y
		sw += b.W
		sh += b.H
	}
	k := float64(len(window))
	return detector.BBox{X: sx / k, Y: sy / k, W: sw / k, H: sh / k}
}

func (t *Track) observe(box detector.BBox, conf float64) {
	t.LastBox = box
	t.Confidence = conf
	t.Boxes = append(t.Boxes, box)
	if len(t.Boxes) > maxStableBoxes {
		t.Boxes = t.Boxes[len(t.Boxes)-maxStableBoxes:]
	}
	t.Hits++
	t.Age = 0
}

// Config holds the gating parameters from spec §4.2.
type Config struct {
	MinHits      int
	MaxAge       int
	IoUThreshold float64
}

func DefaultConfig() Config {
	return Config{MinHits: 3, MaxAge: 30, IoUThreshold: 0.3}
}

// MultiTracker runs one IoU-matching state machine per video.
type MultiTracker struct {
	cfg     Config
	tracks  []*Track
	nextID  int
}

func New(cfg Config) *MultiTracker {
	if cfg.IoUThreshold == 0 && cfg.MinHits == 0 && cfg.MaxAge == 0 {
		cfg = DefaultConfig()
	}
	return &MultiTracker{cfg: cfg}
}

// Update advances every track by one frame against a new set of detections.
// Returns every track still held after this update (Tentative, Confirmed,
// and Lost tracks within MaxAge; see ActiveTracks). A track pruned in this
// update is gone from both the returned slice and the tracker.
func (mt *MultiTracker) Update(dets []detector.Detection) []*Track {
	matched, unmatchedTracks, unmatchedDets := mt.assign(dets)

	for ti, di := range matched {
		mt.tracks[ti].observe(dets[di].Box, dets[di].Confidence)
		if mt.tracks[ti].State == StateTentative && mt.tracks[ti].Hits >= mt.cfg.MinHits {
			mt.tracks[ti].State = StateConfirmed
		}
		if mt.tracks[ti].State == StateLost {
			mt.tracks[ti].State = StateConfirmed
		}
	}

	for _, ti := range unmatchedTracks {
		t := mt.tracks[ti]
		t.Age++
		if t.State == StateConfirmed {
			t.State = StateLost
		}
	}

	for _, di := range unmatchedDets {
		mt.tracks = append(mt.tracks, &Track{
			ID:    mt.nextID,
			State: StateTentative,
		})
		mt.nextID++
		mt.tracks[len(mt.tracks)-1].observe(dets[di].Box, dets[di].Confidence)
		if t := mt.tracks[len(mt.tracks)-1]; t.Hits >= mt.cfg.MinHits {
			t.State = StateConfirmed
		}
	}

	mt.prune()
	return mt.ActiveTracks()
}

// assign performs greedy IoU matching: the highest-IoU (track, detection)
// pair above threshold is committed first, then removed from further
// consideration, repeating until no pair clears the threshold.
func (mt *MultiTracker) assign(dets []detector.Detection) (matched map[int]int, unmatchedTracks, unmatchedDets []int) {
	matched = make(map[int]int)
	trackAvail := make(map[int]bool, len(mt.tracks))
	detAvail := make(map[int]bool, len(dets))
	for i := range mt.tracks {
		trackAvail[i] = true
	}
	for i := range dets {
		detAvail[i] = true
	}

	type pair struct {
		ti, di int
		iou    float64
	}
	var pairs []pair
	for ti, t := range mt.tracks {
		pred := t.StableBox()
		for di, d := range dets {
			iou := pred.IoU(d.Box)
			if iou >= mt.cfg.IoUThreshold {
				pairs = append(pairs, pair{ti, di, iou})
			}
		}
	}
	// Stable: pairs are built in (track id, detection list order), so ties on
	// iou keep that order instead of an arbitrary one.
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].iou > pairs[j].iou })

	for _, p := range pairs {
		if !trackAvail[p.ti] || !detAvail[p.di] {
			continue
		}
		matched[p.ti] = p.di
		trackAvail[p.ti] = false
		detAvail[p.di] = false
	}

	for ti, avail := range trackAvail {
		if avail {
			unmatchedTracks = append(unmatchedTracks, ti)
		}
	}
	for di, avail := range detAvail {
		if avail {
			unmatchedDets = append(unmatchedDets, di)
		}
	}
	sort.Ints(unmatchedTracks)
	sort.Ints(unmatchedDets)
	return matched, unmatchedTracks, unmatchedDets
}

// prune drops Lost tracks that have exceeded MaxAge, and tentative tracks
// that never reached MinHits before aging out.
func (mt *MultiTracker) prune() {
	kept := mt.tracks[:0]
	for _, t := range mt.tracks {
		if t.State == StateLost && t.Age > mt.cfg.MaxAge {
			continue
		}
		if t.State == StateTentative && t.Age > mt.cfg.MaxAge {
			continue
		}
		kept = append(kept, t)
	}
	mt.tracks = kept
}

// ActiveTracks returns every track not yet pruned, including Lost ones
// still within MaxAge (so a brief occlusion doesn't drop the animal's
// identity).
func (mt *MultiTracker) ActiveTracks() []*Track {
	out := make([]*Track, len(mt.tracks))
	copy(out, mt.tracks)
	return out
}

// ConfirmedCount returns the number of tracks currently in the Confirmed
// state, the per-frame series the Count Verifier consumes.
func (mt *MultiTracker) ConfirmedCount() int {
	n := 0
	for _, t := range mt.tracks {
		if t.State == StateConfirmed {
			n++
		}
	}
	return n
}
