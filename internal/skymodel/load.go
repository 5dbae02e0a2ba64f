// Package skymodel reads sky-model catalogues and writes evaluated Gaussian
// coefficients.
package skymodel

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/signalsfoundry/skymodel/model"
)

const (
	degToRad    = math.Pi / 180
	arcsecToRad = degToRad / 3600
)

// ErrBadRow reports a catalogue row that could not be parsed.
var ErrBadRow = errors.New("bad sky model row")

// Load parses a text sky model. Each non-comment row holds
//
//	RA(deg) Dec(deg) I [Q U V [refFreq(Hz) [spectralIndex [maj(arcsec) min(arcsec) pa(deg)]]]]
//
// separated by whitespace or commas. Rows with 3 to 8 or exactly 11 columns
// are accepted; anything after '#' is ignored. Sources are named "src-N"
// in file order, starting at 0.
func Load(r io.Reader) ([]*model.Source, error) {
	var sources []*model.Source
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\r'
		})
		if len(fields) == 0 {
			continue
		}

		src, err := parseRow(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		src.ID = fmt.Sprintf("src-%d", len(sources))
		sources = append(sources, src)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sky model: %w", err)
	}
	return sources, nil
}

func parseRow(fields []string) (*model.Source, error) {
	n := len(fields)
	if n < 3 || (n > 8 && n != 11) {
		return nil, fmt.Errorf("%w: %d columns, want 3-8 or 11", ErrBadRow, n)
	}
	vals := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: column %d: %q is not a number", ErrBadRow, i+1, f)
		}
		vals[i] = v
	}
	return sourceFromColumns(vals)
}

// sourceFromColumns converts catalogue units to radians and validates the
// result. Missing trailing columns are zero.
func sourceFromColumns(vals []float64) (*model.Source, error) {
	n := len(vals)
	col := func(i int) float64 {
		if i < n {
			return vals[i]
		}
		return 0
	}
	src := &model.Source{
		RA:                   col(0) * degToRad,
		Dec:                  col(1) * degToRad,
		StokesI:              col(2),
		StokesQ:              col(3),
		StokesU:              col(4),
		StokesV:              col(5),
		ReferenceFrequencyHz: col(6),
		SpectralIndex:        col(7),
		MajorFWHM:            col(8) * arcsecToRad,
		MinorFWHM:            col(9) * arcsecToRad,
		PositionAngle:        col(10) * degToRad,
	}
	if math.Abs(col(1)) > 90 {
		return nil, fmt.Errorf("%w: declination %g deg outside [-90, 90]", ErrBadRow, col(1))
	}
	if src.MajorFWHM < 0 || src.MinorFWHM < 0 {
		return nil, fmt.Errorf("%w: negative FWHM", ErrBadRow)
	}
	return src, nil
}

// internal JSON shapes, kept unexported.
type catalogueJSON struct {
	Sources []sourceJSON `json:"sources"`
}

type sourceJSON struct {
	ID            string  `json:"id"`
	RADeg         float64 `json:"ra_deg"`
	DecDeg        float64 `json:"dec_deg"`
	I             float64 `json:"i"`
	Q             float64 `json:"q"`
	U             float64 `json:"u"`
	V             float64 `json:"v"`
	RefFreqHz     float64 `json:"ref_freq_hz"`
	SpectralIndex float64 `json:"spectral_index"`
	MajorArcsec   float64 `json:"fwhm_major_arcsec"`
	MinorArcsec   float64 `json:"fwhm_minor_arcsec"`
	PADeg         float64 `json:"position_angle_deg"`
}

// LoadJSON decodes a catalogue of the form {"sources": [...]}, using the same
// units as the text format. Sources without an id are named "src-N".
func LoadJSON(r io.Reader) ([]*model.Source, error) {
	var payload catalogueJSON
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode sky model: %w", err)
	}

	sources := make([]*model.Source, 0, len(payload.Sources))
	for i, s := range payload.Sources {
		src, err := sourceFromColumns([]float64{
			s.RADeg, s.DecDeg, s.I, s.Q, s.U, s.V,
			s.RefFreqHz, s.SpectralIndex,
			s.MajorArcsec, s.MinorArcsec, s.PADeg,
		})
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		src.ID = s.ID
		if src.ID == "" {
			src.ID = fmt.Sprintf("src-%d", i)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// LoadFile opens path and parses it as JSON when it has a .json extension,
// or as a text sky model otherwise.
func LoadFile(path string) ([]*model.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sources []*model.Source
	if strings.EqualFold(filepath.Ext(path), ".json") {
		sources, err = LoadJSON(f)
	} else {
		sources, err = Load(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sources, nil
}
