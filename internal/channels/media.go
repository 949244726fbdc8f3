package channels

import "github.com/neurana/undoable-sub002/pkg/models"

// isMediaWithinLimit reports whether an attachment's byte size is within
// the channel's configured MaxMediaBytes. A zero or negative limit means
// no cap is enforced.
func isMediaWithinLimit(cfg models.ChannelConfig, sizeBytes int64) bool {
	if cfg.MaxMediaBytes <= 0 {
		return true
	}
	return sizeBytes <= cfg.MaxMediaBytes
}

// FilterOversizedAttachments drops attachments whose declared size exceeds
// the channel's MaxMediaBytes, returning the filtered list and the count
// dropped.
func FilterOversizedAttachments(cfg models.ChannelConfig, attachments []models.Attachment, sizeOf func(models.Attachment) int64) ([]models.Attachment, int) {
	if len(attachments) == 0 {
		return attachments, 0
	}
	kept := make([]models.Attachment, 0, len(attachments))
	dropped := 0
	for _, a := range attachments {
		size := int64(0)
		if sizeOf != nil {
			size = sizeOf(a)
		}
		if isMediaWithinLimit(cfg, size) {
			kept = append(kept, a)
		} else {
			dropped++
		}
	}
	return kept, dropped
}
