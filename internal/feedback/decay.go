package feedback

import (
	"math"
	"time"

	"github.com/engramdev/engram/pkg/models"
)

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// decayFactor computes the combined time/feedback decay multiplier:
// base^days, scaled by 0.5 + 0.5*positive_ratio. With no feedback the
// ratio is 1.0, so decay is unmodified absent signal.
func decayFactor(base float64, days int, meta *models.Metadata) float64 {
	if days < 0 {
		days = 0
	}
	return math.Pow(base, float64(days)) * (0.5 + 0.5*meta.PositiveRatio())
}

// DecayAll applies time-based decay to every active or under-review
// memory. Idempotent at day granularity: a memory already stamped on this
// run's calendar day is skipped, and for older stamps elapsed days count
// from the later of last access and last decay, so rerunning maintenance
// after an interruption never double-ages.
// Archived and superseded memories are never touched, so decay can never
// resurrect or further bury them.
func (e *Engine) DecayAll(base, archiveBelow float64) (map[string]int, error) {
	stats := map[string]int{"processed": 0, "decayed": 0, "archived": 0, "unchanged": 0}
	runTime := e.now()

	memories, err := e.store.All()
	if err != nil {
		return stats, err
	}
	for i := range memories {
		m := &memories[i]
		meta := &m.Metadata
		if meta.Status == models.StatusArchived || meta.Status == models.StatusSuperseded {
			continue
		}
		stats["processed"]++
		if !meta.LastDecayed.IsZero() && sameDay(meta.LastDecayed, runTime) {
			stats["unchanged"]++
			continue
		}

		since := meta.LastAccessed
		if since.IsZero() {
			since = meta.CreatedAt
		}
		if meta.LastDecayed.After(since) {
			since = meta.LastDecayed
		}
		days := int(runTime.Sub(since).Hours() / 24)
		factor := decayFactor(base, days, meta)
		newConfidence := models.ClampConfidence(meta.Confidence * factor)

		changed := math.Abs(newConfidence-meta.Confidence) > 1e-9
		archive := newConfidence < archiveBelow

		_, err := e.store.Update(m.ID, func(mem *models.Memory) {
			mem.Metadata.LastDecayed = runTime
			if changed {
				mem.Metadata.Confidence = newConfidence
			}
			if archive {
				mem.Metadata.Status = models.StatusArchived
			}
		})
		if err != nil {
			e.lg.Warn("decay update failed", "memory", m.ID, "error", err)
			continue
		}
		switch {
		case archive:
			stats["archived"]++
			e.lg.Info("archived decayed memory", "memory", m.ID, "confidence", newConfidence)
		case changed:
			stats["decayed"]++
		default:
			stats["unchanged"]++
		}
	}
	return stats, nil
}

// ArchiveSweep archives any non-terminal memory whose confidence has
// fallen below the archive threshold through paths other than decay.
func (e *Engine) ArchiveSweep(archiveBelow float64) (map[string]int, error) {
	stats := map[string]int{"archived": 0}
	memories, err := e.store.All()
	if err != nil {
		return stats, err
	}
	for i := range memories {
		m := &memories[i]
		if m.Metadata.Status == models.StatusArchived || m.Metadata.Status == models.StatusSuperseded {
			continue
		}
		if m.Metadata.Confidence >= archiveBelow {
			continue
		}
		if _, err := e.store.Update(m.ID, func(mem *models.Memory) {
			mem.Metadata.Status = models.StatusArchived
		}); err != nil {
			e.lg.Warn("archive sweep update failed", "memory", m.ID, "error", err)
			continue
		}
		stats["archived"]++
	}
	return stats, nil
}
