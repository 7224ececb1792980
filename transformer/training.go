package transformer

// TrainConfig drives the toy training loops. Learning rate follows linear
// warmup then cosine decay (see optimizations.LRSchedule); TargetLoss stops
// an epoch loop early once the mean epoch loss drops below it (0 disables).
type TrainConfig struct {
	Epochs      int
	PeakLR      float64
	WarmupSteps int
	DecaySteps  int
	TargetLoss  float64
}

// LabeledSequence is one classification example: a fixed-length token ID
// sequence and its class label.
type LabeledSequence struct {
	IDs   []int
	Label int
}

// TranslationPair is one sequence-to-sequence example. Source and Target
// are token IDs over the same shared vocabulary; Target carries neither the
// start nor the end marker — the trainer adds both.
type TranslationPair struct {
	Source []int
	Target []int
}
