package elements

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/kv"
)

// BackupPrefix prefixes the key of every element backup.
const BackupPrefix = "element_backup_"

// RemoveOptions tunes RemoveElement. The zero value asks for confirmation and
// closes the gap left by the removed element.
type RemoveOptions struct {
	SkipConfirm bool
	// SaveBackup writes the element to the key-value store before deletion.
	SaveBackup bool
	// KeepPositions leaves a gap instead of left-shifting later siblings.
	KeepPositions bool
}

// Backup is a removed element as persisted in the key-value store.
type Backup struct {
	ElementKey string            `json:"elementKey"`
	Element    *document.Element `json:"element"`
	Timestamp  time.Time         `json:"timestamp"`
	SectionID  string            `json:"sectionId"`
}

// RemoveElement deletes an element. It returns false with ErrAborted when the
// confirmation is declined, and ErrNotFound when the element does not exist.
func (e *Engine) RemoveElement(ctx context.Context, sectionID, key string, opts RemoveOptions) (bool, error) {
	const op = "remove element"
	sec, ok := e.store.Section(sectionID)
	if !ok {
		return false, sectionNotFound(op, sectionID)
	}
	if _, ok := sec.Elements[key]; !ok {
		return false, elementNotFound(op, sectionID, key)
	}
	// Confirmation can block on a user, so it runs before the lock is taken.
	if err := e.confirm(ctx, op, sectionID, key, "Are you sure you want to delete this element?", opts.SkipConfirm); err != nil {
		return false, err
	}

	var removed *document.Element
	err := e.mutate(op, sectionID, func(sec *document.Section) error {
		el, ok := sec.Elements[key]
		if !ok {
			return elementNotFound(op, sectionID, key)
		}
		if opts.SaveBackup || e.backupOnDelete {
			e.saveBackup(ctx, sectionID, el)
		}
		delete(sec.Elements, key)
		if !opts.KeepPositions {
			closeGap(sec, el.Metadata.Position)
		}
		removed = el
		return nil
	})
	if err != nil {
		return false, err
	}

	e.record(document.ChangeContent, sectionID, key, map[string]any{
		"op":      "element-remove",
		"element": removed,
	}, nil, fmt.Sprintf("Deleted %s element", removed.Type))
	return true, nil
}

// BatchDeleteElements removes every listed element after one confirmation and
// returns how many were deleted. Unknown keys are skipped. Positions are not
// renumbered; call CompactPositions to close the gaps.
func (e *Engine) BatchDeleteElements(ctx context.Context, sectionID string, keys []string) (int, error) {
	const op = "batch delete elements"
	if _, ok := e.store.Section(sectionID); !ok {
		return 0, sectionNotFound(op, sectionID)
	}
	msg := fmt.Sprintf("Are you sure you want to delete %d elements?", len(keys))
	if err := e.confirm(ctx, op, sectionID, "", msg, false); err != nil {
		return 0, err
	}

	var deleted []map[string]any
	err := e.mutate(op, sectionID, func(sec *document.Section) error {
		for _, key := range keys {
			el, ok := sec.Elements[key]
			if !ok {
				continue
			}
			deleted = append(deleted, map[string]any{"elementKey": key, "element": el})
			delete(sec.Elements, key)
		}
		if len(deleted) > 0 && !sec.Dense() {
			e.logger.Debug("batch delete left position gaps", zap.String("section", sectionID), zap.Int("deleted", len(deleted)))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(deleted) > 0 {
		e.record(document.ChangeContent, sectionID, "", map[string]any{
			"op":       "element-batch-delete",
			"elements": deleted,
		}, nil, fmt.Sprintf("Deleted %d elements", len(deleted)))
	}
	return len(deleted), nil
}

// saveBackup is best effort: a failed write is logged and never blocks deletion.
func (e *Engine) saveBackup(ctx context.Context, sectionID string, el *document.Element) {
	if e.kv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, kvTimeout)
	defer cancel()
	b := Backup{ElementKey: el.Key, Element: el.Clone(), Timestamp: e.now(), SectionID: sectionID}
	if err := kv.SetJSON(ctx, e.kv, BackupPrefix+el.Key, b); err != nil {
		e.logger.Warn("element backup failed",
			zap.String("section", sectionID),
			zap.String("element", el.Key),
			zap.Error(err))
	}
}

// ListBackups returns every stored backup, oldest first.
func (e *Engine) ListBackups(ctx context.Context) ([]Backup, error) {
	const op = "list backups"
	keys, err := e.kv.Keys(ctx, BackupPrefix)
	if err != nil {
		return nil, fault(op, "", "", err)
	}
	out := make([]Backup, 0, len(keys))
	for _, k := range keys {
		var b Backup
		if err := kv.GetJSON(ctx, e.kv, k, &b); err != nil {
			e.logger.Warn("skipping unreadable backup", zap.String("key", k), zap.Error(err))
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// RestoreElementBackup re-inserts a backed-up element and deletes the backup.
// An empty sectionID restores into the section the element was removed from.
// The element keeps its id and version and returns at its recorded position,
// or at the end when the section has since shrunk.
func (e *Engine) RestoreElementBackup(ctx context.Context, sectionID, key string) (string, error) {
	const op = "restore element"
	var b Backup
	if err := kv.GetJSON(ctx, e.kv, BackupPrefix+key, &b); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return "", newError(CodeNotFound, op, sectionID, key, fmt.Errorf("no backup for %q", key))
		}
		return "", fault(op, sectionID, key, err)
	}
	if b.Element == nil {
		return "", invalid(op, sectionID, key, "backup holds no element")
	}
	if sectionID == "" {
		sectionID = b.SectionID
	}

	el := b.Element.Clone()
	err := e.mutate(op, sectionID, func(sec *document.Section) error {
		if _, exists := sec.Elements[el.Key]; exists {
			return conflict(op, sectionID, el.Key, "element key already in use")
		}
		position := clamp(el.Metadata.Position, 0, len(sec.Elements))
		el.SectionID = sectionID
		el.Metadata.Position = position
		el.Metadata.LastModified = e.now()
		resetEditState(el)
		shiftFrom(sec, position)
		sec.Elements[el.Key] = el
		return nil
	})
	if err != nil {
		return "", err
	}

	if err := e.kv.Delete(ctx, BackupPrefix+key); err != nil {
		e.logger.Warn("restored backup not deleted", zap.String("element", key), zap.Error(err))
	}
	e.record(document.ChangeContent, sectionID, el.Key, nil, map[string]any{
		"op":      "element-restore",
		"element": el.Clone(),
	}, fmt.Sprintf("Restored %s element", el.Type))
	return el.Key, nil
}
