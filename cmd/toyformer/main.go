// Command toyformer trains the three small transformer variants on their
// built-in datasets and prints what they learned.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"toyformer/data"
	"toyformer/transformer"
)

var (
	epochs int
	peakLR float64
	seed   uint64
)

func main() {
	root := &cobra.Command{
		Use:   "toyformer",
		Short: "Train tiny transformer variants on built-in toy datasets",
	}
	root.PersistentFlags().IntVar(&epochs, "epochs", 2000, "maximum training epochs")
	root.PersistentFlags().Float64Var(&peakLR, "lr", 0.05, "peak learning rate")
	root.PersistentFlags().Uint64Var(&seed, "seed", 1, "weight init seed")

	root.AddCommand(classifyCmd(), translateCmd(), generateCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func trainConfig() transformer.TrainConfig {
	return transformer.TrainConfig{
		Epochs:      epochs,
		PeakLR:      peakLR,
		WarmupSteps: 50,
		DecaySteps:  epochs * 4,
		TargetLoss:  0.01,
	}
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify",
		Short: "Train the encoder-only sentiment classifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, examples, err := data.Sentiment()
			if err != nil {
				return err
			}
			model, err := transformer.NewClassifier(transformer.ClassifierConfig{
				DModel:     4,
				MaxLen:     data.SentimentMaxLen,
				VocabSize:  v.Size(),
				NumHeads:   2,
				NumClasses: 2,
				Seed:       seed,
			})
			if err != nil {
				return err
			}
			loss, err := model.Train(examples, trainConfig())
			if err != nil {
				return err
			}
			cmd.Printf("final loss %.4f\n", loss)
			for _, ex := range examples {
				pred, err := model.Predict(ex.IDs)
				if err != nil {
					return err
				}
				words, err := v.Tokens(ex.IDs)
				if err != nil {
					return err
				}
				cmd.Printf("%-40s want %d got %d\n", strings.Join(words, " "), ex.Label, pred)
			}
			return nil
		},
	}
}

func translateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "translate",
		Short: "Train the encoder-decoder translator",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, pairs, err := data.Translation()
			if err != nil {
				return err
			}
			sos, err := v.ID("<sos>")
			if err != nil {
				return err
			}
			eos, err := v.ID("<eos>")
			if err != nil {
				return err
			}
			model, err := transformer.NewSeq2Seq(transformer.Seq2SeqConfig{
				DModel:    2,
				MaxLen:    6,
				VocabSize: v.Size(),
				SOS:       sos,
				EOS:       eos,
				Seed:      seed,
			})
			if err != nil {
				return err
			}
			loss, err := model.Train(pairs, trainConfig())
			if err != nil {
				return err
			}
			cmd.Printf("final loss %.4f\n", loss)
			for _, p := range pairs {
				out, err := model.Generate(p.Source)
				if err != nil {
					return err
				}
				src, err := v.Tokens(p.Source)
				if err != nil {
					return err
				}
				words, err := v.Tokens(out)
				if err != nil {
					return err
				}
				cmd.Printf("%-12s -> %s\n", strings.Join(src, " "), strings.Join(words, " "))
			}
			return nil
		},
	}
}

func generateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Train the decoder-only generator",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, seqs, err := data.Prompts()
			if err != nil {
				return err
			}
			eos, err := v.ID("<eos>")
			if err != nil {
				return err
			}
			model, err := transformer.NewGenerator(transformer.GeneratorConfig{
				DModel:    2,
				MaxLen:    6,
				VocabSize: v.Size(),
				EOS:       eos,
				Seed:      seed,
			})
			if err != nil {
				return err
			}
			loss, err := model.Train(seqs, trainConfig())
			if err != nil {
				return err
			}
			cmd.Printf("final loss %.4f\n", loss)
			for _, seq := range seqs {
				prompt := seq[:4] // question plus its <eos> separator
				out, err := model.Generate(prompt)
				if err != nil {
					return err
				}
				pw, err := v.Tokens(prompt)
				if err != nil {
					return err
				}
				ow, err := v.Tokens(out)
				if err != nil {
					return err
				}
				cmd.Printf("%-24s -> %s\n", strings.Join(pw, " "), strings.Join(ow, " "))
			}
			return nil
		},
	}
}
