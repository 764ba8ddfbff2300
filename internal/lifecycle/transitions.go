package lifecycle

import (
	"fmt"
	"strings"
	"time"
)

// DefaultMaxRetries bounds failed -> pending storage retries.
const DefaultMaxRetries = 3

// Policy carries the tunables of the state machine.
type Policy struct {
	MaxRetries int
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: DefaultMaxRetries}
}

// Exhausted reports whether a failed photo has used up its retries and is permanently failed.
func (p Policy) Exhausted(s State) bool {
	return s.Storage == StorageFailed && s.RetryCount >= p.MaxRetries
}

// SetStorage moves the storage axis to the requested status.
//
//	pending -> completed
//	pending -> failed    (reason required)
//	failed  -> pending   (retry, retryCount+1, rejected once the ceiling is reached)
func (p Policy) SetStorage(s State, to StorageStatus, reason string) (State, error) {
	reason = strings.TrimSpace(reason)
	from := s.Storage

	switch {
	case from == StoragePending && to == StorageCompleted:
		s.FailureReason = nil
	case from == StoragePending && to == StorageFailed:
		if reason == "" {
			return State{}, fmt.Errorf("%w: storage failure requires a reason", ErrInvalidTransition)
		}
		s.FailureReason = &reason
	case from == StorageFailed && to == StoragePending:
		if p.Exhausted(s) {
			return State{}, fmt.Errorf("%w: retry limit %d reached", ErrInvalidTransition, p.MaxRetries)
		}
		s.RetryCount++
		s.FailureReason = nil
	default:
		return State{}, invalid(AxisStorage, from, to)
	}

	s.Storage = to
	return s, nil
}

// SetBackup moves the backup axis. A completed backup must carry the path it was written to.
func SetBackup(s State, to BackupStatus, path string) (State, error) {
	path = strings.TrimSpace(path)
	from := s.Backup

	switch {
	case from == BackupPending && to == BackupCompleted:
		if path == "" {
			return State{}, fmt.Errorf("%w: completed backup requires a path", ErrInvalidTransition)
		}
		s.BackupPath = &path
	case from == BackupPending && to == BackupFailed:
		s.BackupPath = nil
	case from == BackupFailed && to == BackupPending:
		s.BackupPath = nil
	default:
		return State{}, invalid(AxisBackup, from, to)
	}

	s.Backup = to
	return s, nil
}

// SetRestore moves the restore axis. A restore can only start from a completed backup; an
// in-progress restore either completes or is abandoned back to none.
func SetRestore(s State, to RestoreStatus) (State, error) {
	from := s.Restore

	switch {
	case to == RestoreInProgress && (from == RestoreAbsent || from == RestoreNone || from == RestoreCompleted):
		if s.Backup != BackupCompleted {
			return State{}, fmt.Errorf("%w: restore requires a completed backup", ErrInvalidTransition)
		}
	case from == RestoreInProgress && (to == RestoreCompleted || to == RestoreNone):
	case from == RestoreAbsent && to == RestoreNone:
	default:
		return State{}, invalid(AxisRestore, from, to)
	}

	s.Restore = to
	return s, nil
}

// Encrypt attaches an encryption record. Method and date are set together.
func Encrypt(s State, method string, at time.Time) (State, error) {
	method = strings.TrimSpace(method)
	if s.IsEncrypted() {
		return State{}, invalid(AxisEncryption, true, true)
	}
	if method == "" || at.IsZero() {
		return State{}, fmt.Errorf("%w: encryption requires method and date", ErrInvalidTransition)
	}
	s.Encryption = &Encryption{Method: method, Date: at}
	return s, nil
}

// Decrypt clears the encryption record.
func Decrypt(s State) (State, error) {
	if !s.IsEncrypted() {
		return State{}, invalid(AxisEncryption, false, false)
	}
	s.Encryption = nil
	return s, nil
}

// DiscardBackup forgets the backup of bytes that were rewritten in place, so the backup axis
// starts over. A running restore would overwrite the rewrite and is refused.
func DiscardBackup(s State) (State, error) {
	if s.Restore == RestoreInProgress {
		return State{}, fmt.Errorf("%w: restore in progress", ErrInvalidTransition)
	}
	s.Backup = BackupPending
	s.BackupPath = nil
	return s, nil
}

// ReplaceContent bumps the version for new photo bytes. The new bytes still have to be
// stored, backed up and encrypted, so those axes start over; the version never does.
func ReplaceContent(s State, at time.Time) State {
	s.Version++
	s.VersionDate = at
	s.Storage = StoragePending
	s.FailureReason = nil
	s.RetryCount = 0
	s.Backup = BackupPending
	s.BackupPath = nil
	s.Encryption = nil
	return s
}
