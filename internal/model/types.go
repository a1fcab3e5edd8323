package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// PopulationSample is the live population at the end of a tick. Tick 0 is the
// freshly seeded model.
type PopulationSample struct {
	Tick      int `json:"tick"`
	Prey      int `json:"prey"`
	Predators int `json:"predators"`
	Poachers  int `json:"poachers"`
}

func (s PopulationSample) Total() int {
	return s.Prey + s.Predators + s.Poachers
}

// RunRecord summarizes a finished run. It describes results only; a run cannot
// be resumed from it.
type RunRecord struct {
	VersionedRecord
	ID               string           `json:"id"`
	Height           int              `json:"height"`
	Width            int              `json:"width"`
	InitialPrey      int              `json:"initial_prey"`
	InitialPredators int              `json:"initial_predators"`
	InitialPoachers  int              `json:"initial_poachers"`
	Seed             int64            `json:"seed"`
	Ticks            int              `json:"ticks"`
	TicksRun         int              `json:"ticks_run"`
	StopReason       string           `json:"stop_reason"`
	Saturations      int              `json:"saturations"`
	Births           int              `json:"births"`
	Deaths           int              `json:"deaths"`
	Final            PopulationSample `json:"final"`
	CreatedAtUTC     string           `json:"created_at_utc"`
}
