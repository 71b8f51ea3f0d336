// Package progress extracts structured signals from the human-readable
// output of the fetcher process. Every function here is best-effort: input
// that does not match a known pattern yields no signal, never an error.
package progress

import (
	"regexp"
	"strconv"
	"strings"
)

// MergeCheckpoint is the percentage reported while streams are being merged.
// The merge step prints no granular progress of its own.
const MergeCheckpoint = 95.0

// Kind identifies what a Signal reports.
type Kind int

const (
	KindPercent Kind = iota + 1
	KindDestination
	KindMerging
)

func (k Kind) String() string {
	switch k {
	case KindPercent:
		return "percent"
	case KindDestination:
		return "destination"
	case KindMerging:
		return "merging"
	default:
		return "unknown"
	}
}

// Signal is one fact scraped from a line of fetcher output.
type Signal struct {
	Kind     Kind
	Percent  float64
	Filename string
}

func Percent(value float64) Signal { return Signal{Kind: KindPercent, Percent: value} }

func Destination(name string) Signal { return Signal{Kind: KindDestination, Filename: name} }

func Merging() Signal { return Signal{Kind: KindMerging} }

var (
	rePercent     = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)%`)
	reDestination = regexp.MustCompile(`Destination:\s+(.+)$`)
	reMergeInto   = regexp.MustCompile(`Merging formats into "(.+)"`)
	reAlreadyDone = regexp.MustCompile(`^\[download\]\s+(.+?)\s+has already been downloaded`)
)

const mergeToken = "Merging"

// Parse scans a chunk of output, which may hold several lines separated by
// newlines or carriage returns, and returns the signals found in line order.
func Parse(chunk string) []Signal {
	var signals []Signal
	for _, line := range splitChunk(chunk) {
		signals = append(signals, ParseLine(line)...)
	}
	return signals
}

// ParseLine returns the signals carried by a single line.
func ParseLine(line string) []Signal {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if m := reDestination.FindStringSubmatch(line); m != nil {
		if name := baseName(m[1]); name != "" {
			return []Signal{Destination(name)}
		}
		return nil
	}

	if m := reAlreadyDone.FindStringSubmatch(line); m != nil {
		if name := baseName(m[1]); name != "" {
			return []Signal{Destination(name)}
		}
		return nil
	}

	if strings.Contains(line, mergeToken) {
		signals := make([]Signal, 0, 3)
		if m := reMergeInto.FindStringSubmatch(line); m != nil {
			if name := baseName(m[1]); name != "" {
				signals = append(signals, Destination(name))
			}
		}
		return append(signals, Merging(), Percent(MergeCheckpoint))
	}

	if m := rePercent.FindStringSubmatch(line); m != nil {
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil || value < 0 || value > 100 {
			return nil
		}
		return []Signal{Percent(value)}
	}
	return nil
}

func splitChunk(chunk string) []string {
	return strings.FieldsFunc(chunk, func(r rune) bool {
		return r == '\n' || r == '\r'
	})
}

// baseName strips directory components using either separator, since the
// fetcher may run on a host with a different path convention.
func baseName(path string) string {
	path = strings.TrimSpace(path)
	path = strings.TrimRight(path, `/\`)
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		path = path[i+1:]
	}
	return strings.TrimSpace(path)
}
