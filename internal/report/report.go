package report

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/goldedit/internal/model"
	"github.com/goldedit/internal/storage"
)

// SlotStats aggregates one slot across a set of entries. True/false counts
// are only meaningful for tri-state boolean slots.
type SlotStats struct {
	TotalNonNull int `json:"total_non_null"`
	TrueCount    int `json:"true_count"`
	FalseCount   int `json:"false_count"`
}

// FileReport is the per-file slice of the statistics report.
type FileReport struct {
	Path          string               `json:"path"`
	TotalEntries  int                  `json:"total_entries"`
	ReviewedCount int                  `json:"reviewed_count"`
	Slots         map[string]SlotStats `json:"slots"`
}

// Report is the full statistics export over the data root.
type Report struct {
	TotalFiles      int                  `json:"total_files"`
	TotalEntries    int                  `json:"total_entries"`
	TotalReviewed   int                  `json:"total_reviewed"`
	Files           []FileReport         `json:"files"`
	GlobalSlotStats map[string]SlotStats `json:"global_slot_stats"`
}

// Build walks every file in the store and aggregates slot fill rates and
// review progress. Unreadable files are skipped with a warning.
func Build(st *storage.Store, schema *model.Schema) (*Report, error) {
	infos, err := st.List()
	if err != nil {
		return nil, err
	}

	slots := schema.KnownSlots()
	r := &Report{
		TotalFiles:      len(infos),
		Files:           []FileReport{},
		GlobalSlotStats: map[string]SlotStats{},
	}
	for _, name := range slots {
		r.GlobalSlotStats[name] = SlotStats{}
	}

	for _, info := range infos {
		path := filepath.Join(st.DataRoot, filepath.FromSlash(info.Path))
		entries, err := storage.LoadEntries(path)
		if err != nil {
			log.Warn().Str("file", info.Path).Err(err).Msg("skipping unreadable file in report")
			continue
		}

		fr := FileReport{
			Path:          info.Path,
			TotalEntries:  len(entries),
			ReviewedCount: info.ReviewedCount,
			Slots:         map[string]SlotStats{},
		}
		r.TotalEntries += len(entries)
		r.TotalReviewed += info.ReviewedCount

		for _, name := range slots {
			var stats SlotStats
			for _, e := range entries {
				if e.Gold == nil {
					continue
				}
				v, ok := e.Gold.Slots[name]
				if !ok || v.IsNull() {
					continue
				}
				stats.TotalNonNull++
				if b, isBool := v.Bool(); isBool {
					if b {
						stats.TrueCount++
					} else {
						stats.FalseCount++
					}
				}
			}
			fr.Slots[name] = stats

			g := r.GlobalSlotStats[name]
			g.TotalNonNull += stats.TotalNonNull
			g.TrueCount += stats.TrueCount
			g.FalseCount += stats.FalseCount
			r.GlobalSlotStats[name] = g
		}
		r.Files = append(r.Files, fr)
	}
	return r, nil
}

// WriteText renders the report for terminal output.
func (r *Report) WriteText(w io.Writer, schema *model.Schema) {
	fmt.Fprintf(w, "Files: %d  Entries: %d  Reviewed: %d\n", r.TotalFiles, r.TotalEntries, r.TotalReviewed)
	fmt.Fprintln(w)
	for _, fr := range r.Files {
		fmt.Fprintf(w, "%s  entries=%d reviewed=%d\n", fr.Path, fr.TotalEntries, fr.ReviewedCount)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Slot fill rates:")
	boolSlots := map[string]bool{}
	for _, name := range schema.BoolSlots() {
		boolSlots[name] = true
	}
	for _, name := range schema.KnownSlots() {
		stats := r.GlobalSlotStats[name]
		if boolSlots[name] {
			fmt.Fprintf(w, "  %-28s %6d  (true=%d false=%d)\n", name, stats.TotalNonNull, stats.TrueCount, stats.FalseCount)
		} else {
			fmt.Fprintf(w, "  %-28s %6d\n", name, stats.TotalNonNull)
		}
	}
}
