package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	flowio "github.com/hed1ad/flowprep/pkg/io"
	"github.com/hed1ad/flowprep/pkg/io/csv"
	"github.com/hed1ad/flowprep/pkg/io/pcap"
	"github.com/hed1ad/flowprep/pkg/table"
)

func newCaptureCmd(a *app) *cobra.Command {
	var (
		file      string
		iface     string
		filter    string
		label     string
		idle      time.Duration
		batchSize int
		process   bool
	)

	cmd := &cobra.Command{
		Use:   "capture (--file PCAP | --iface IF) OUT",
		Short: "Aggregate packets into flow records",
		Long:  `capture reads packets from a pcap file or a live interface, groups them into bidirectional flows and writes one CSV row per flow with CICIDS column names. Live captures run until interrupted.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (file == "") == (iface == "") {
				return errors.New("exactly one of --file or --iface is required")
			}

			capture := a.cfg.Capture
			if cmd.Flags().Changed("label") {
				capture.Label = label
			}
			if cmd.Flags().Changed("idle-timeout") {
				capture.IdleTimeout = idle
			}
			if cmd.Flags().Changed("batch-size") {
				capture.BatchSize = batchSize
			}
			if cmd.Flags().Changed("filter") {
				capture.Filter = filter
			}

			opts := []pcap.Option{
				pcap.WithLabel(capture.Label),
				pcap.WithIdleTimeout(capture.IdleTimeout),
				pcap.WithBatchSize(capture.BatchSize),
			}

			var (
				r   *pcap.Reader
				err error
			)
			if file != "" {
				r, err = pcap.NewFileReader(file, opts...)
			} else {
				r, err = pcap.NewLiveReader(iface, capture.Snaplen, capture.Promisc, time.Second, opts...)
			}
			if err != nil {
				return err
			}
			defer r.Close()

			if capture.Filter != "" {
				if err := r.SetBPFFilter(capture.Filter); err != nil {
					return err
				}
			}

			w, err := csv.NewWriter(args[0])
			if err != nil {
				return err
			}
			defer w.Close()

			p := a.preprocessor()
			flows := 0
			err = consume(cmd.Context(), r, func(t *table.Table) error {
				a.metrics.ObserveRead("pcap", t.Len())
				if process {
					// The first batch fits the model so every batch shares its columns.
					var err error
					if !p.Fitted() {
						t, err = p.FitTransform(t)
					} else {
						t, err = p.Transform(t)
					}
					if err != nil {
						return err
					}
				}
				if err := w.Write(t); err != nil {
					return err
				}
				a.metrics.ObserveWrite(t.Len())

				flows += t.Len()
				a.logger.Debug().Int("flows", t.Len()).Int("total", flows).Msg("batch written")
				return nil
			})
			if err != nil {
				return err
			}

			a.logger.Info().Str("output", args[0]).Int("flows", flows).Msg("capture finished")
			return w.Close()
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read packets from a pcap file")
	cmd.Flags().StringVarP(&iface, "iface", "i", "", "Capture packets on a network interface")
	cmd.Flags().StringVar(&filter, "filter", "", "BPF filter expression")
	cmd.Flags().StringVar(&label, "label", "", "Label written on every flow")
	cmd.Flags().DurationVar(&idle, "idle-timeout", 0, "Emit flows idle for this long")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Flows per written batch")
	cmd.Flags().BoolVar(&process, "process", false, "Clean each batch with statistics fitted on the first one")
	return cmd
}

// consume hands every streamed batch to handle. The stream is cancelled when
// handle fails so the reader goroutine does not block on an abandoned channel.
func consume(ctx context.Context, sr flowio.StreamReader, handle func(*table.Table) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches, err := sr.Stream(ctx)
	if err != nil {
		return err
	}

	for t := range batches {
		if err := handle(t); err != nil {
			return err
		}
	}
	return sr.Err()
}
