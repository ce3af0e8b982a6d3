package domain

import "time"

type LearnState string

const (
	LearnStateSelectBackend LearnState = "SELECT_BACKEND"
	LearnStateBuild         LearnState = "BUILD"
	LearnStateValidate      LearnState = "VALIDATE"
	LearnStatePersist       LearnState = "PERSIST"
	LearnStateDone          LearnState = "DONE"
	LearnStateFailed        LearnState = "FAILED"
)

type LearnTransition struct {
	From LearnState `json:"from"`
	To   LearnState `json:"to"`
	At   time.Time  `json:"at"`
}

// LearnOutcome is the trace of one run of the learn state machine.
type LearnOutcome struct {
	Backend     string            `json:"backend"`
	State       LearnState        `json:"state"`
	Transitions []LearnTransition `json:"transitions"`
	Build       Stats             `json:"build,omitempty"`
	Validation  Stats             `json:"validation,omitempty"`
	ModelPath   string            `json:"model_path,omitempty"`
	InfoPath    string            `json:"info_path,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func NewLearnOutcome(backend string) *LearnOutcome {
	return &LearnOutcome{Backend: backend, State: LearnStateSelectBackend}
}

func (o *LearnOutcome) MoveTo(next LearnState) {
	o.Transitions = append(o.Transitions, LearnTransition{From: o.State, To: next, At: time.Now().UTC()})
	o.State = next
}

func (o *LearnOutcome) Fail(err error) {
	o.MoveTo(LearnStateFailed)
	o.Error = err.Error()
}

// Parameters mirrors dev/parameters.yaml.
type Parameters struct {
	Model            string   `yaml:"model" json:"model"`
	Workers          int      `yaml:"workers" json:"workers"`
	InputType        string   `yaml:"input_type" json:"input_type"`
	SDFileName       string   `yaml:"sdfile_name" json:"sdfile_name"`
	SDFileActivity   string   `yaml:"sdfile_activity" json:"sdfile_activity"`
	SDFileExperiment string   `yaml:"sdfile_experimental" json:"sdfile_experimental"`
	NormalizeMethod  string   `yaml:"normalize_method" json:"normalize_method"`
	IonizeMethod     string   `yaml:"ionize_method" json:"ionize_method"`
	Convert3DMethod  string   `yaml:"convert3d_method" json:"convert3d_method"`
	DescriptorFields []string `yaml:"descriptor_fields" json:"descriptor_fields"`
	RidgeLambda      float64  `yaml:"ridge_lambda" json:"ridge_lambda"`
	ValidationFolds  int      `yaml:"validation_folds" json:"validation_folds"`
}

func DefaultParameters() Parameters {
	return Parameters{
		Model:            "RIDGE",
		InputType:        "molecule",
		SDFileName:       "name",
		SDFileActivity:   "activity",
		NormalizeMethod:  "standardize",
		IonizeMethod:     "none",
		Convert3DMethod:  "none",
		DescriptorFields: []string{},
		RidgeLambda:      1.0,
		ValidationFolds:  5,
	}
}

// BuildReport summarises one build run on an endpoint's dev version.
type BuildReport struct {
	Endpoint string        `json:"endpoint"`
	Records  int           `json:"records"`
	Features int           `json:"features"`
	Chunks   int           `json:"chunks"`
	Outcome  *LearnOutcome `json:"outcome"`
}
