package transformer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"toyformer/data"
	"toyformer/transformer"
	"toyformer/vocab"
)

func TestNewModelConfigValidation(t *testing.T) {
	var cfgErr *transformer.InvalidConfigError

	_, err := transformer.NewClassifier(transformer.ClassifierConfig{
		DModel: 4, MaxLen: 6, VocabSize: 10, NumHeads: 2, NumClasses: 1, Seed: 1,
	})
	require.ErrorAs(t, err, &cfgErr)

	_, err = transformer.NewClassifier(transformer.ClassifierConfig{
		DModel: 3, MaxLen: 6, VocabSize: 10, NumHeads: 2, NumClasses: 2, Seed: 1,
	})
	require.ErrorAs(t, err, &cfgErr) // odd width

	_, err = transformer.NewSeq2Seq(transformer.Seq2SeqConfig{
		DModel: 2, MaxLen: 6, VocabSize: 6, SOS: 6, EOS: 5, Seed: 1,
	})
	require.ErrorAs(t, err, &cfgErr)

	_, err = transformer.NewSeq2Seq(transformer.Seq2SeqConfig{
		DModel: 2, MaxLen: 6, VocabSize: 6, SOS: 4, EOS: -1, Seed: 1,
	})
	require.ErrorAs(t, err, &cfgErr)

	_, err = transformer.NewGenerator(transformer.GeneratorConfig{
		DModel: 2, MaxLen: 6, VocabSize: 5, EOS: 5, Seed: 1,
	})
	require.ErrorAs(t, err, &cfgErr)
}

func TestClassifierTrainStepRejectsBadLabel(t *testing.T) {
	c, err := transformer.NewClassifier(transformer.ClassifierConfig{
		DModel: 2, MaxLen: 4, VocabSize: 5, NumHeads: 1, NumClasses: 2, Seed: 1,
	})
	require.NoError(t, err)

	var shapeErr *transformer.ShapeError
	_, err = c.TrainStep([]int{0, 1}, 2, 0.01)
	require.ErrorAs(t, err, &shapeErr)
	_, err = c.TrainStep([]int{0, 1}, -1, 0.01)
	require.ErrorAs(t, err, &shapeErr)
}

func TestSeq2SeqTrainStepRejectsBadTarget(t *testing.T) {
	m, err := transformer.NewSeq2Seq(transformer.Seq2SeqConfig{
		DModel: 2, MaxLen: 6, VocabSize: 6, SOS: 4, EOS: 5, Seed: 1,
	})
	require.NoError(t, err)

	var verr *vocab.Error
	_, err = m.TrainStep(transformer.TranslationPair{
		Source: []int{0},
		Target: []int{6},
	}, 0.01)
	require.ErrorAs(t, err, &verr)
}

func TestGeneratorTrainStepRejectsShortSequence(t *testing.T) {
	g, err := transformer.NewGenerator(transformer.GeneratorConfig{
		DModel: 2, MaxLen: 6, VocabSize: 5, EOS: 4, Seed: 1,
	})
	require.NoError(t, err)

	var shapeErr *transformer.ShapeError
	_, err = g.TrainStep([]int{3}, 0.01)
	require.ErrorAs(t, err, &shapeErr)
}

// Generation must stop at MaxLen even when the model never emits EOS.
func TestGenerateBoundedByMaxLen(t *testing.T) {
	g, err := transformer.NewGenerator(transformer.GeneratorConfig{
		DModel: 2, MaxLen: 5, VocabSize: 5, EOS: 4, Seed: 99,
	})
	require.NoError(t, err)

	out, err := g.Generate([]int{0})
	require.NoError(t, err)
	require.LessOrEqual(t, len(out), 4) // running sequence capped at 5

	// a prompt already at the cap generates nothing
	out, err = g.Generate([]int{0, 1, 2, 3, 0})
	require.NoError(t, err)
	require.Empty(t, out)

	var shapeErr *transformer.ShapeError
	_, err = g.Generate(nil)
	require.ErrorAs(t, err, &shapeErr)
}

func TestSeq2SeqGenerateBounded(t *testing.T) {
	m, err := transformer.NewSeq2Seq(transformer.Seq2SeqConfig{
		DModel: 2, MaxLen: 4, VocabSize: 6, SOS: 4, EOS: 5, Seed: 99,
	})
	require.NoError(t, err)

	out, err := m.Generate([]int{0, 1})
	require.NoError(t, err)
	require.LessOrEqual(t, len(out), 3) // SOS occupies one slot
}

func TestClassifierLearnsSentiment(t *testing.T) {
	v, examples, err := data.Sentiment()
	require.NoError(t, err)

	model, err := transformer.NewClassifier(transformer.ClassifierConfig{
		DModel:     4,
		MaxLen:     data.SentimentMaxLen,
		VocabSize:  v.Size(),
		NumHeads:   2,
		NumClasses: 2,
		Seed:       1,
	})
	require.NoError(t, err)

	loss, err := model.Train(examples, transformer.TrainConfig{
		Epochs:      3000,
		PeakLR:      0.05,
		WarmupSteps: 50,
		DecaySteps:  200_000,
		TargetLoss:  0.02,
	})
	require.NoError(t, err)
	require.Less(t, loss, 0.5)

	for _, ex := range examples {
		pred, err := model.Predict(ex.IDs)
		require.NoError(t, err)
		require.Equal(t, ex.Label, pred, "ids %v", ex.IDs)
	}
}

func TestSeq2SeqLearnsTranslation(t *testing.T) {
	v, pairs, err := data.Translation()
	require.NoError(t, err)
	sos, err := v.ID("<sos>")
	require.NoError(t, err)
	eos, err := v.ID("<eos>")
	require.NoError(t, err)

	model, err := transformer.NewSeq2Seq(transformer.Seq2SeqConfig{
		DModel:    2,
		MaxLen:    6,
		VocabSize: v.Size(),
		SOS:       sos,
		EOS:       eos,
		Seed:      1,
	})
	require.NoError(t, err)

	loss, err := model.Train(pairs, transformer.TrainConfig{
		Epochs:      3000,
		PeakLR:      0.05,
		WarmupSteps: 50,
		DecaySteps:  200_000,
		TargetLoss:  0.02,
	})
	require.NoError(t, err)
	require.Less(t, loss, 0.5)

	for _, p := range pairs {
		out, err := model.Generate(p.Source)
		require.NoError(t, err)
		want := append(append([]int{}, p.Target...), eos)
		require.Equal(t, want, out, "source %v", p.Source)
	}
}

func TestGeneratorLearnsPrompts(t *testing.T) {
	v, seqs, err := data.Prompts()
	require.NoError(t, err)
	eos, err := v.ID("<eos>")
	require.NoError(t, err)
	awesome, err := v.ID("awesome")
	require.NoError(t, err)

	model, err := transformer.NewGenerator(transformer.GeneratorConfig{
		DModel:    2,
		MaxLen:    6,
		VocabSize: v.Size(),
		EOS:       eos,
		Seed:      1,
	})
	require.NoError(t, err)

	loss, err := model.Train(seqs, transformer.TrainConfig{
		Epochs:      3000,
		PeakLR:      0.05,
		WarmupSteps: 50,
		DecaySteps:  200_000,
		TargetLoss:  0.02,
	})
	require.NoError(t, err)
	require.Less(t, loss, 0.5)

	// both word orders of the question answer "awesome <eos>"
	for _, seq := range seqs {
		out, err := model.Generate(seq[:4])
		require.NoError(t, err)
		require.Equal(t, []int{awesome, eos}, out, "prompt %v", seq[:4])
	}
}
