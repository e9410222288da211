// Package alarm maps logical task identities to platform alarm slots and
// issues schedule/cancel calls against an external one-shot scheduler.
package alarm

import (
	"fmt"
	"time"

	"github.com/routinely/routined/internal/db"
)

// StandaloneSlotOffset shifts standalone task ids into their own slot range
// so they can never collide with routine task ids.
const StandaloneSlotOffset = 1_000_000

// Payload carries everything the firing handler needs, so no repository read
// happens on the fire path.
type Payload struct {
	TaskID    int64       `json:"task_id"`
	Kind      db.TaskKind `json:"kind"`
	Title     string      `json:"title"`
	SoundRef  string      `json:"sound_ref,omitempty"`
	PlaySound bool        `json:"play_sound"`
}

// Scheduler is the platform alarm service. RegisterOneShot with a slot that
// already holds a pending alarm replaces it; Cancel of an empty slot is a
// no-op.
type Scheduler interface {
	RegisterOneShot(slot int64, at time.Time, p Payload) error
	Cancel(slot int64) error
}

// Registry derives deterministic slot ids for tasks and guarantees at most
// one pending alarm per task identity through replace-on-schedule semantics.
type Registry struct {
	scheduler Scheduler
}

// NewRegistry creates a registry backed by the given scheduler.
func NewRegistry(s Scheduler) *Registry {
	return &Registry{scheduler: s}
}

// SlotID derives the stable alarm slot for a task identity.
func SlotID(kind db.TaskKind, taskID int64) int64 {
	if kind == db.KindStandalone {
		return taskID + StandaloneSlotOffset
	}
	return taskID
}

// Schedule registers (or replaces) the pending alarm for the task. Errors
// from the underlying scheduler surface to the caller and are not retried.
func (r *Registry) Schedule(kind db.TaskKind, taskID int64, title, soundRef string, playSound bool, at time.Time) error {
	p := Payload{
		TaskID:    taskID,
		Kind:      kind,
		Title:     title,
		SoundRef:  soundRef,
		PlaySound: playSound,
	}
	if err := r.scheduler.RegisterOneShot(SlotID(kind, taskID), at, p); err != nil {
		return fmt.Errorf("alarm: schedule %s/%d: %w", kind, taskID, err)
	}
	return nil
}

// Cancel removes any pending alarm for the task. Cancelling a task with no
// pending alarm is a no-op.
func (r *Registry) Cancel(kind db.TaskKind, taskID int64) error {
	if err := r.scheduler.Cancel(SlotID(kind, taskID)); err != nil {
		return fmt.Errorf("alarm: cancel %s/%d: %w", kind, taskID, err)
	}
	return nil
}
