package backup

import (
	"context"
	"time"

	"tenant-backup/internal/logging"
)

// RetentionPolicy bounds how many encrypted blobs are kept. MaxCount below one
// disables pruning of encrypted blobs.
type RetentionPolicy struct {
	MaxCount int
}

// RetentionResult represents the result of applying the retention policy
type RetentionResult struct {
	Kept           []string          `json:"kept"`
	Deleted        []string          `json:"deleted"`
	LegacyDeleted  []string          `json:"legacy_deleted"`
	Failed         map[string]string `json:"failed,omitempty"`
	ProcessingTime time.Duration     `json:"processing_time"`
}

// DeletedCount returns the number of blobs removed
func (r *RetentionResult) DeletedCount() int {
	return len(r.Deleted) + len(r.LegacyDeleted)
}

// RetentionPlan lists what Apply would delete
type RetentionPlan struct {
	Keep         []BlobInfo
	Delete       []BlobInfo
	DeleteLegacy []BlobInfo
}

// RetentionManager is the only component that deletes blobs
type RetentionManager struct {
	store  ObjectStore
	policy RetentionPolicy
	logger *logging.Logger
	audit  func(action, blob string, err error)
}

// NewRetentionManager creates a new retention manager
func NewRetentionManager(store ObjectStore, policy RetentionPolicy, logger *logging.Logger) *RetentionManager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &RetentionManager{
		store:  store,
		policy: policy,
		logger: logger,
	}
}

// SetAuditHook registers a callback invoked for every deletion attempt
func (rm *RetentionManager) SetAuditHook(hook func(action, blob string, err error)) {
	rm.audit = hook
}

// PlanRetention decides which blobs to keep. The newest MaxCount encrypted
// blobs are kept, ordered by the timestamp embedded in their names; every
// legacy blob is deleted; current is always kept; names that are not
// backups are left alone.
func PlanRetention(blobs []BlobInfo, policy RetentionPolicy, current string) RetentionPlan {
	var plan RetentionPlan

	sorted := append([]BlobInfo(nil), blobs...)
	sortBlobsNewestFirst(sorted)

	kept := 0
	if current != "" {
		for _, blob := range sorted {
			if blob.Name == current && blob.Kind == BlobKindEncrypted {
				kept++
				break
			}
		}
	}

	for _, blob := range sorted {
		switch blob.Kind {
		case BlobKindLegacy:
			plan.DeleteLegacy = append(plan.DeleteLegacy, blob)
		case BlobKindEncrypted:
			switch {
			case blob.Name == current:
				plan.Keep = append(plan.Keep, blob)
			case policy.MaxCount < 1 || kept < policy.MaxCount:
				plan.Keep = append(plan.Keep, blob)
				kept++
			default:
				plan.Delete = append(plan.Delete, blob)
			}
		}
	}

	return plan
}

// Apply lists the store and deletes what the policy rejects. A failed
// deletion is recorded and the remaining deletions continue; the error
// returned covers listing failures only.
func (rm *RetentionManager) Apply(ctx context.Context, current string) (*RetentionResult, error) {
	startTime := time.Now()

	objects, err := rm.store.List(ctx)
	if err != nil {
		return nil, NewStorageError("failed to list blobs for retention", err)
	}

	plan := PlanRetention(DescribeObjects(objects), rm.policy, current)
	result := &RetentionResult{
		Kept:          []string{},
		Deleted:       []string{},
		LegacyDeleted: []string{},
		Failed:        make(map[string]string),
	}
	for _, blob := range plan.Keep {
		result.Kept = append(result.Kept, blob.Name)
	}

	for _, blob := range plan.Delete {
		if rm.delete(ctx, blob.Name, "retention_delete", result) {
			result.Deleted = append(result.Deleted, blob.Name)
		}
	}
	for _, blob := range plan.DeleteLegacy {
		if rm.delete(ctx, blob.Name, "legacy_delete", result) {
			result.LegacyDeleted = append(result.LegacyDeleted, blob.Name)
		}
	}

	result.ProcessingTime = time.Since(startTime)
	rm.logger.WithFields(map[string]interface{}{
		"operation":      "retention",
		"max_count":      rm.policy.MaxCount,
		"kept":           len(result.Kept),
		"deleted":        len(result.Deleted),
		"legacy_deleted": len(result.LegacyDeleted),
		"failed":         len(result.Failed),
		"duration":       result.ProcessingTime.String(),
	}).Info("Retention policy applied")

	return result, nil
}

func (rm *RetentionManager) delete(ctx context.Context, name, action string, result *RetentionResult) bool {
	err := rm.store.Delete(ctx, name)
	if rm.audit != nil {
		rm.audit(action, name, err)
	}
	if err != nil {
		result.Failed[name] = err.Error()
		rm.logger.WithFields(map[string]interface{}{
			"blob":   name,
			"action": action,
			"error":  err.Error(),
		}).Warn("Failed to delete blob")
		return false
	}
	rm.logger.WithFields(map[string]interface{}{
		"blob":   name,
		"action": action,
	}).Debug("Deleted blob")
	return true
}
