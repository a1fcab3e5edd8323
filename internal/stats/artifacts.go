package stats

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"ecosim/internal/ecology"
	"ecosim/internal/model"
)

const (
	runIndexFile = "run_index.json"
	configFile   = "config.json"
	historyFile  = "population_history.json"
	summaryFile  = "summary.json"
	seriesFile   = "population_series.csv"
)

// ErrInvalidRunID marks a run id that cannot be used as a single directory
// name under the runs directory.
var ErrInvalidRunID = errors.New("invalid run id")

// ValidateRunID accepts ids that name exactly one path element.
func ValidateRunID(runID string) error {
	switch {
	case runID == "":
		return fmt.Errorf("%w: run id is required", ErrInvalidRunID)
	case runID == "." || runID == "..":
		return fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	case strings.ContainsAny(runID, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidRunID, runID)
	case filepath.Base(runID) != runID || filepath.VolumeName(runID) != "":
		return fmt.Errorf("%w: %q is not a plain name", ErrInvalidRunID, runID)
	}
	return nil
}

// RunArtifactsExist reports whether runID has an artifacts directory or a
// run index entry under baseDir.
func RunArtifactsExist(baseDir, runID string) (bool, error) {
	if err := ValidateRunID(runID); err != nil {
		return false, err
	}
	if _, err := os.Stat(filepath.Join(baseDir, runID)); err == nil {
		return true, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.RunID == runID {
			return true, nil
		}
	}
	return false, nil
}

type RunConfig struct {
	RunID            string         `json:"run_id"`
	Height           int            `json:"height"`
	Width            int            `json:"width"`
	Prey             int            `json:"prey"`
	Predators        int            `json:"predators"`
	Poachers         int            `json:"poachers"`
	Ticks            int            `json:"ticks"`
	Seed             int64          `json:"seed"`
	StepDelayMS      int64          `json:"step_delay_ms,omitempty"`
	StopOnSaturation bool           `json:"stop_on_saturation,omitempty"`
	Params           ecology.Params `json:"params"`
}

type RunSummary struct {
	RunID       string                 `json:"run_id"`
	TicksRun    int                    `json:"ticks_run"`
	StopReason  string                 `json:"stop_reason"`
	Saturations int                    `json:"saturations"`
	Births      int                    `json:"births"`
	Deaths      int                    `json:"deaths"`
	Final       model.PopulationSample `json:"final"`
	Species     []SpeciesSummary       `json:"species"`
}

type RunArtifacts struct {
	Config  RunConfig                `json:"config"`
	History []model.PopulationSample `json:"history"`
	Summary RunSummary               `json:"summary"`
}

type RunIndexEntry struct {
	RunID        string                 `json:"run_id"`
	Height       int                    `json:"height"`
	Width        int                    `json:"width"`
	Seed         int64                  `json:"seed"`
	Ticks        int                    `json:"ticks"`
	TicksRun     int                    `json:"ticks_run"`
	StopReason   string                 `json:"stop_reason"`
	Final        model.PopulationSample `json:"final"`
	CreatedAtUTC string                 `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if err := ValidateRunID(artifacts.Config.RunID); err != nil {
		return "", err
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, historyFile), artifacts.History); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, summaryFile), artifacts.Summary); err != nil {
		return "", err
	}
	if err := WritePopulationSeries(runDir, artifacts.History); err != nil {
		return "", err
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := readRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// RemoveRunIndex drops runID from the index. A missing entry is not an error.
func RemoveRunIndex(baseDir, runID string) error {
	index, err := readRunIndex(baseDir)
	if err != nil {
		return err
	}
	kept := index[:0]
	for _, entry := range index {
		if entry.RunID != runID {
			kept = append(kept, entry)
		}
	}
	if len(kept) == len(index) {
		return nil
	}
	return writeJSON(filepath.Join(baseDir, runIndexFile), kept)
}

// ListRunIndex returns index entries newest first. Entries sharing a
// timestamp keep the most recently appended one first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if err := ValidateRunID(runID); err != nil {
		return "", err
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, historyFile, seriesFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	// Runs written before summaries existed have no summary file.
	summaryPath := filepath.Join(src, summaryFile)
	if _, err := os.Stat(summaryPath); err == nil {
		if err := copyFile(summaryPath, filepath.Join(dst, summaryFile)); err != nil {
			return "", err
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	if err := ValidateRunID(runID); err != nil {
		return RunConfig{}, false, err
	}
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	if err != nil || !ok {
		return RunConfig{}, ok, err
	}
	return cfg, true, nil
}

func ReadPopulationHistory(baseDir, runID string) ([]model.PopulationSample, bool, error) {
	if err := ValidateRunID(runID); err != nil {
		return nil, false, err
	}
	var history []model.PopulationSample
	ok, err := readJSON(filepath.Join(baseDir, runID, historyFile), &history)
	if err != nil || !ok {
		return nil, ok, err
	}
	return history, true, nil
}

func ReadRunSummary(baseDir, runID string) (RunSummary, bool, error) {
	if err := ValidateRunID(runID); err != nil {
		return RunSummary{}, false, err
	}
	var summary RunSummary
	ok, err := readJSON(filepath.Join(baseDir, runID, summaryFile), &summary)
	if err != nil || !ok {
		return RunSummary{}, ok, err
	}
	return summary, true, nil
}

func WritePopulationSeries(runDir string, history []model.PopulationSample) error {
	path := filepath.Join(runDir, seriesFile)
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"tick", "prey", "predators", "poachers", "total"}); err != nil {
		return err
	}
	for _, sample := range history {
		if err := writer.Write([]string{
			strconv.Itoa(sample.Tick),
			strconv.Itoa(sample.Prey),
			strconv.Itoa(sample.Predators),
			strconv.Itoa(sample.Poachers),
			strconv.Itoa(sample.Total()),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadPopulationSeries(baseDir, runID string) ([]model.PopulationSample, bool, error) {
	if err := ValidateRunID(runID); err != nil {
		return nil, false, err
	}
	path := filepath.Join(baseDir, runID, seriesFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.PopulationSample{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 4 {
		return nil, false, fmt.Errorf("population series header must have at least 4 columns")
	}

	series := make([]model.PopulationSample, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 4 {
			return nil, false, fmt.Errorf("population series row must have at least 4 columns")
		}
		var values [4]int
		for i := range values {
			v, err := strconv.Atoi(record[i])
			if err != nil {
				return nil, false, fmt.Errorf("population series row %q: %w", record, err)
			}
			values[i] = v
		}
		series = append(series, model.PopulationSample{
			Tick:      values[0],
			Prey:      values[1],
			Predators: values[2],
			Poachers:  values[3],
		})
	}
	return series, true, nil
}

func readRunIndex(baseDir string) ([]RunIndexEntry, error) {
	var entries []RunIndexEntry
	ok, err := readJSON(filepath.Join(baseDir, runIndexFile), &entries)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []RunIndexEntry{}, nil
	}
	return entries, nil
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
