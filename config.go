package mattar

// Config holds the run-level options shared by the controller, the mixer
// and the dynamic encoder/decoder. Per-task schema lives in task.Config.
type Config struct {
	Agent          string
	ActionSelector string
	DynamicEncoder string
	DynamicDecoder string

	// AgentOutputType selects how the agent head is interpreted.
	// "pi_logits" runs the masked-softmax / epsilon-floor path,
	// "q" returns the raw per-action values.
	AgentOutputType   string
	MaskBeforeSoftmax bool

	TaskRepreDim int
	HiddenDim    int
	LatentDim    int

	MixingEmbedDim int
	AttnEmbedDim   int
	EntityEmbedDim int

	EpsilonStart      float32
	EpsilonFinish     float32
	EpsilonAnnealTime int
	TestGreedy        bool
}

func NewConfig() Config {
	return Config{
		Agent:             "mt_gru",
		ActionSelector:    "epsilon_greedy",
		DynamicEncoder:    "mt_mlp",
		DynamicDecoder:    "mt_mlp",
		AgentOutputType:   "pi_logits",
		MaskBeforeSoftmax: true,
		TaskRepreDim:      8,
		HiddenDim:         64,
		LatentDim:         32,
		MixingEmbedDim:    32,
		AttnEmbedDim:      16,
		EntityEmbedDim:    32,
		EpsilonStart:      1.0,
		EpsilonFinish:     0.05,
		EpsilonAnnealTime: 50000,
		TestGreedy:        true,
	}
}
