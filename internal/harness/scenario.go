package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/epmem/internal/config"
	"github.com/roach88/epmem/internal/engine"
)

// Scenario is a scripted run of ticks and commands against one engine.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is engine configuration in the same shape as a CUE config
	// file. Missing fields take the schema defaults.
	Config map[string]any `yaml:"config,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final transcript, store and counters.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is either a tick or a command.
type Step struct {
	// Tick replaces the recorded working memory with these triples and
	// records an episode.
	Tick *string `yaml:"tick,omitempty"`

	// Command is retrieve, next, previous, query, store or release.
	Command string `yaml:"command,omitempty"`

	// Anchor names the identifier episodes are installed under. Its first
	// letter is the identifier letter. Default "R".
	Anchor string `yaml:"anchor,omitempty"`

	// Episode is the episode to retrieve.
	Episode int64 `yaml:"episode,omitempty"`

	// Pos and Neg are query cues. Variables such as <q> become fresh
	// identifiers; the first triple's identifier is the cue root.
	Pos string `yaml:"pos,omitempty"`
	Neg string `yaml:"neg,omitempty"`

	Before   int64   `yaml:"before,omitempty"`
	After    int64   `yaml:"after,omitempty"`
	Prohibit []int64 `yaml:"prohibit,omitempty"`

	// LTI is the long-term identifier to store, e.g. "@L1".
	LTI string `yaml:"lti,omitempty"`

	// Expect checks the step outcome. Nil checks nothing.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is a subset check on a step outcome. Unset fields are ignored.
type Expect struct {
	Status      string `yaml:"status,omitempty"`
	Code        string `yaml:"code,omitempty"`
	Episode     *int64 `yaml:"episode,omitempty"`
	Cardinality *int   `yaml:"cardinality,omitempty"`
	GraphMatch  *bool  `yaml:"graph_match,omitempty"`
	Orphans     *int   `yaml:"orphans,omitempty"`
	// WM is the exact rendering of the anchor's subgraph after the step.
	WM []string `yaml:"wm,omitempty"`

	NodesCreated *int `yaml:"nodes_created,omitempty"`
	EdgesCreated *int `yaml:"edges_created,omitempty"`
	Activated    *int `yaml:"activated,omitempty"`
	Closed       *int `yaml:"closed,omitempty"`
	PoolReuses   *int `yaml:"pool_reuses,omitempty"`
}

// Assertion validates the transcript, the store or the engine counters.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Command, Status, Code and Episode select events (transcript_*).
	Command string `yaml:"command,omitempty"`
	Status  string `yaml:"status,omitempty"`
	Code    string `yaml:"code,omitempty"`
	Episode *int64 `yaml:"episode,omitempty"`

	// Commands is the expected order (transcript_order).
	Commands []string `yaml:"commands,omitempty"`

	// Count is the expected number of events or rows.
	Count int `yaml:"count,omitempty"`

	// Table and Where select rows (final_state, row_count). All where
	// fields must match exactly.
	Table string         `yaml:"table,omitempty"`
	Where map[string]any `yaml:"where,omitempty"`

	// Expect holds expected column values of the selected row
	// (final_state). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Stat is the JSON name of an engine.Stats counter and Value its
	// expected value (stat).
	Stat  string   `yaml:"stat,omitempty"`
	Value *float64 `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertTranscriptContains = "transcript_contains"
	AssertTranscriptOrder    = "transcript_order"
	AssertTranscriptCount    = "transcript_count"
	AssertFinalState         = "final_state"
	AssertRowCount           = "row_count"
	AssertStat               = "stat"
)

// CommandRelease retracts an anchor's episode. It has no engine Command.
const CommandRelease = KindRelease

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// EngineConfig resolves the scenario config through the CUE schema.
func (s *Scenario) EngineConfig() (config.Config, error) {
	if len(s.Config) == 0 {
		return config.Default(), nil
	}
	// JSON is CUE, so the schema does the defaulting and validation.
	src, err := json.Marshal(s.Config)
	if err != nil {
		return config.Config{}, fmt.Errorf("encode config: %w", err)
	}
	return config.Parse(src, s.Name+".config")
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if _, err := s.EngineConfig(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s *Step) error {
	if s.Tick != nil {
		if s.Command != "" {
			return fmt.Errorf("steps[%d]: tick and command are exclusive", index)
		}
		return nil
	}
	if s.Anchor != "" && !isLetter(s.Anchor[0]) {
		return fmt.Errorf("steps[%d]: anchor %q must start with a letter", index, s.Anchor)
	}

	switch s.Command {
	case "":
		return fmt.Errorf("steps[%d]: tick or command is required", index)
	case string(engine.CommandRetrieve), string(engine.CommandNext),
		string(engine.CommandPrevious), CommandRelease:
	case string(engine.CommandQuery):
		if s.Pos == "" {
			return fmt.Errorf("steps[%d]: pos is required for query", index)
		}
	case string(engine.CommandStoreLTI):
		if s.LTI == "" {
			return fmt.Errorf("steps[%d]: lti is required for store", index)
		}
	default:
		return fmt.Errorf("steps[%d]: unknown command %q", index, s.Command)
	}

	if e := s.Expect; e != nil && e.Status != "" {
		switch e.Status {
		case engine.StatusSuccess.String(), engine.StatusFailure.String(), engine.StatusBadCommand.String():
		default:
			return fmt.Errorf("steps[%d].expect: unknown status %q", index, e.Status)
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTranscriptContains:
		if a.Command == "" {
			return fmt.Errorf("assertions[%d]: command is required for transcript_contains", index)
		}
	case AssertTranscriptOrder:
		if len(a.Commands) == 0 {
			return fmt.Errorf("assertions[%d]: commands list is required for transcript_order", index)
		}
	case AssertTranscriptCount:
		if a.Command == "" {
			return fmt.Errorf("assertions[%d]: command is required for transcript_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for transcript_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertStat:
		if a.Stat == "" || a.Value == nil {
			return fmt.Errorf("assertions[%d]: stat and value are required for stat", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func isLetter(c byte) bool {
	return strings.IndexByte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ", c) >= 0
}
