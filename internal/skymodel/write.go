package skymodel

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/skymodel/model"
)

// Format selects the output encoding of Write.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat maps a flag value onto a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	case "jsonl", "ndjson":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", s)
	}
}

// Result is one evaluated source ready to be written.
type Result struct {
	// Epoch is set for drift-scan runs and omitted when zero.
	Epoch   time.Time
	ID      string
	Outcome model.SourceOutcome
}

// Results pairs outcomes with the source IDs returned by kb.SourceCatalog.Batch.
func Results(epoch time.Time, ids []string, outcomes []model.SourceOutcome) []Result {
	res := make([]Result, 0, len(outcomes))
	for _, o := range outcomes {
		id := ""
		if o.Index >= 0 && o.Index < len(ids) {
			id = ids[o.Index]
		}
		res = append(res, Result{Epoch: epoch, ID: id, Outcome: o})
	}
	return res
}

var csvHeader = []string{
	"epoch", "id", "outcome", "gaussian_a", "gaussian_b", "gaussian_c",
	"apparent_major_rad", "apparent_minor_rad", "apparent_pa_rad", "error",
}

type resultJSON struct {
	Epoch    *time.Time `json:"epoch,omitempty"`
	ID       string     `json:"id"`
	Outcome  string     `json:"outcome"`
	A        *float64   `json:"gaussian_a,omitempty"`
	B        *float64   `json:"gaussian_b,omitempty"`
	C        *float64   `json:"gaussian_c,omitempty"`
	MajorRad *float64   `json:"apparent_major_rad,omitempty"`
	MinorRad *float64   `json:"apparent_minor_rad,omitempty"`
	PARad    *float64   `json:"apparent_pa_rad,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// Write encodes results in the given format. CSV output starts with a
// header row when header is true, so that several epochs can be appended to
// one stream. Coefficient columns are empty for sources that did not succeed.
func Write(w io.Writer, format Format, results []Result, header bool) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, results, header)
	case FormatJSON:
		return writeJSON(w, results)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func writeCSV(w io.Writer, results []Result, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
	}
	for _, r := range results {
		row := make([]string, len(csvHeader))
		if !r.Epoch.IsZero() {
			row[0] = r.Epoch.UTC().Format(time.RFC3339Nano)
		}
		row[1] = r.ID
		row[2] = r.Outcome.Label()
		if r.Outcome.Kind == model.OutcomeSucceeded {
			for i, v := range []float64{
				r.Outcome.A, r.Outcome.B, r.Outcome.C,
				r.Outcome.Apparent.Major, r.Outcome.Apparent.Minor, r.Outcome.Apparent.PositionAngle,
			} {
				row[3+i] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if r.Outcome.Err != nil {
			row[9] = r.Outcome.Err.Error()
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, results []Result) error {
	enc := json.NewEncoder(w)
	for _, r := range results {
		rec := resultJSON{ID: r.ID, Outcome: r.Outcome.Label()}
		if !r.Epoch.IsZero() {
			epoch := r.Epoch.UTC()
			rec.Epoch = &epoch
		}
		if r.Outcome.Kind == model.OutcomeSucceeded {
			o := r.Outcome
			rec.A, rec.B, rec.C = &o.A, &o.B, &o.C
			rec.MajorRad = &o.Apparent.Major
			rec.MinorRad = &o.Apparent.Minor
			rec.PARad = &o.Apparent.PositionAngle
		}
		if r.Outcome.Err != nil {
			rec.Error = r.Outcome.Err.Error()
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}
