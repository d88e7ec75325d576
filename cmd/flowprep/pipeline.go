package main

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hed1ad/flowprep/pkg/preprocess"
)

func newProcessCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process IN OUT",
		Short: "Clean a flow table, fitting statistics on the table itself",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.readTable(args[0])
			if err != nil {
				return err
			}

			out, err := a.preprocessor().Process(t)
			if err != nil {
				return err
			}
			return a.writeTable(args[1], out)
		},
	}
	addInputFlags(cmd, a)
	return cmd
}

func newFitCmd(a *app) *cobra.Command {
	var (
		modelPath string
		name      string
		outPath   string
	)

	cmd := &cobra.Command{
		Use:   "fit IN",
		Short: "Fit preprocessing statistics and save them",
		Long:  `fit learns medians, scaler parameters and the protocol vocabulary from IN. The result is written as a descriptor to --model, registered under --name in the model store, or both.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if modelPath == "" && name == "" {
				return errors.New("one of --model or --name is required")
			}

			t, err := a.readTable(args[0])
			if err != nil {
				return err
			}

			p := a.preprocessor()
			out, err := p.FitTransform(t)
			if err != nil {
				return err
			}
			d := p.Descriptor()

			if modelPath != "" {
				if err := writeDescriptor(modelPath, d); err != nil {
					return err
				}
				a.logger.Info().Str("model", modelPath).Str("id", d.ID).Msg("model saved")
			}
			if name != "" {
				s, err := a.openStore()
				if err != nil {
					return err
				}
				defer s.Close()

				entry, err := s.Put(name, d)
				if err != nil {
					return err
				}
				a.logger.Info().
					Str("name", entry.Name).
					Uint64("version", entry.Version).
					Str("id", entry.ID).
					Msg("model registered")
			}
			if outPath != "" {
				return a.writeTable(outPath, out)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "Write the fitted descriptor to this file")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Register the model in the store under this name")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Also write the transformed table")
	addInputFlags(cmd, a)
	return cmd
}

func newTransformCmd(a *app) *cobra.Command {
	var (
		modelPath string
		name      string
		version   uint64
	)

	cmd := &cobra.Command{
		Use:   "transform IN OUT",
		Short: "Clean a flow table with previously fitted statistics",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.loadDescriptor(modelPath, name, version)
			if err != nil {
				return err
			}
			p, err := preprocess.FromDescriptor(d, a.options()...)
			if err != nil {
				return err
			}
			if !p.Fitted() {
				return errors.Wrapf(preprocess.ErrNotFitted, "descriptor %s", d.ID)
			}

			t, err := a.readTable(args[0])
			if err != nil {
				return err
			}
			out, err := p.Transform(t)
			if err != nil {
				return err
			}
			return a.writeTable(args[1], out)
		},
	}

	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "Descriptor file written by fit")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Model name in the store")
	cmd.Flags().Uint64Var(&version, "version", 0, "Model version in the store, latest if 0")
	addInputFlags(cmd, a)
	return cmd
}

func newCompileCmd(a *app) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Write the pipeline descriptor of the current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := a.preprocessor().Descriptor()
			if outPath == "-" {
				return preprocess.WriteDescriptor(cmd.OutOrStdout(), d)
			}
			if err := writeDescriptor(outPath, d); err != nil {
				return err
			}
			a.logger.Info().Str("path", outPath).Str("id", d.ID).Msg("descriptor written")
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "preprocessor.yaml", "Descriptor file, - for stdout")
	return cmd
}

// loadDescriptor reads a descriptor from a file or from the store.
func (a *app) loadDescriptor(path, name string, version uint64) (preprocess.Descriptor, error) {
	switch {
	case path != "" && name != "":
		return preprocess.Descriptor{}, errors.New("--model and --name are mutually exclusive")
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return preprocess.Descriptor{}, errors.Wrap(err, "open model")
		}
		defer f.Close()
		return preprocess.ReadDescriptor(f)
	case name != "":
		s, err := a.openStore()
		if err != nil {
			return preprocess.Descriptor{}, err
		}
		defer s.Close()

		if version == 0 {
			d, _, err := s.Latest(name)
			return d, err
		}
		d, _, err := s.Get(name, version)
		return d, err
	default:
		return preprocess.Descriptor{}, errors.New("one of --model or --name is required")
	}
}

func writeDescriptor(path string, d preprocess.Descriptor) error {
	var buf bytes.Buffer
	if err := preprocess.WriteDescriptor(&buf, d); err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, buf.Bytes(), 0o644), "write descriptor")
}
