// Package data builds the small in-memory datasets the example commands
// train on. Each builder returns the vocabulary alongside the examples so
// callers can map model output back to tokens.
package data

import (
	"toyformer/transformer"
	"toyformer/vocab"
)

// Sentiment labels.
const (
	Negative = 0
	Positive = 1
)

// SentimentMaxLen is the padded length of every sentiment example.
const SentimentMaxLen = 6

// Sentiment returns a tiny binary sentiment set: short opinion sentences
// padded with "<pad>" to SentimentMaxLen tokens.
func Sentiment() (*vocab.Vocabulary, []transformer.LabeledSequence, error) {
	v, err := vocab.New([]string{
		"edison", "is", "handsome", "smart", "great",
		"mean", "ugly", "awful", "not", "very", "so", "<pad>",
	})
	if err != nil {
		return nil, nil, err
	}
	raw := []struct {
		words []string
		label int
	}{
		{[]string{"edison", "is", "handsome"}, Positive},
		{[]string{"edison", "is", "very", "smart"}, Positive},
		{[]string{"edison", "is", "so", "great"}, Positive},
		{[]string{"edison", "is", "not", "mean"}, Positive},
		{[]string{"edison", "is", "ugly"}, Negative},
		{[]string{"edison", "is", "so", "awful"}, Negative},
		{[]string{"edison", "is", "not", "great"}, Negative},
	}
	pad, err := v.ID("<pad>")
	if err != nil {
		return nil, nil, err
	}
	examples := make([]transformer.LabeledSequence, 0, len(raw))
	for _, r := range raw {
		ids, err := v.IDs(r.words)
		if err != nil {
			return nil, nil, err
		}
		for len(ids) < SentimentMaxLen {
			ids = append(ids, pad)
		}
		examples = append(examples, transformer.LabeledSequence{IDs: ids, Label: r.label})
	}
	return v, examples, nil
}

// Translation returns a two-pair English -> Spanish set over a shared
// vocabulary that also carries the "<sos>" and "<eos>" markers the decoder
// needs.
func Translation() (*vocab.Vocabulary, []transformer.TranslationPair, error) {
	v, err := vocab.New([]string{"lets", "go", "vamos", "ir", "<sos>", "<eos>"})
	if err != nil {
		return nil, nil, err
	}
	raw := []struct{ src, tgt []string }{
		{[]string{"lets", "go"}, []string{"vamos"}},
		{[]string{"go"}, []string{"ir"}},
	}
	pairs := make([]transformer.TranslationPair, 0, len(raw))
	for _, r := range raw {
		src, err := v.IDs(r.src)
		if err != nil {
			return nil, nil, err
		}
		tgt, err := v.IDs(r.tgt)
		if err != nil {
			return nil, nil, err
		}
		pairs = append(pairs, transformer.TranslationPair{Source: src, Target: tgt})
	}
	return v, pairs, nil
}

// Prompts returns a next-token prediction set: two question/answer
// sequences where the answer depends on word order, so the model must use
// position, not just token identity.
func Prompts() (*vocab.Vocabulary, [][]int, error) {
	v, err := vocab.New([]string{"what", "is", "statquest", "awesome", "<eos>"})
	if err != nil {
		return nil, nil, err
	}
	raw := [][]string{
		{"what", "is", "statquest", "<eos>", "awesome", "<eos>"},
		{"statquest", "is", "what", "<eos>", "awesome", "<eos>"},
	}
	seqs := make([][]int, 0, len(raw))
	for _, words := range raw {
		ids, err := v.IDs(words)
		if err != nil {
			return nil, nil, err
		}
		seqs = append(seqs, ids)
	}
	return v, seqs, nil
}
