package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/mnistsql/internal/pipeline"
	"github.com/ajitpratap0/mnistsql/pkg/compression"
	"github.com/ajitpratap0/mnistsql/pkg/dataset"
	"github.com/ajitpratap0/mnistsql/pkg/errors"
	"github.com/ajitpratap0/mnistsql/pkg/export"
	"github.com/ajitpratap0/mnistsql/pkg/grouper"
	"github.com/ajitpratap0/mnistsql/pkg/store"
)

// sourceFlags are shared by the commands that read the dataset.
type sourceFlags struct {
	root     string
	split    string
	limit    int
	labels   []int
	download bool
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.root, "root", "", "Directory holding the IDX files (default from config)")
	cmd.Flags().StringVar(&f.split, "split", "", "Dataset split: train or test (default from config)")
	cmd.Flags().IntVar(&f.limit, "limit", -1, "Maximum records per label, 0 for no limit (default from config)")
	cmd.Flags().IntSliceVar(&f.labels, "labels", nil, "Only keep these labels, e.g. --labels 0,1,7")
	cmd.Flags().BoolVar(&f.download, "download", false, "Download the split first when its files are missing")
}

func (a *app) openSource(ctx context.Context, f *sourceFlags) (*dataset.IDXSource, pipeline.Options, error) {
	root := a.cfg.Dataset.Root
	if f.root != "" {
		root = f.root
	}
	splitName := a.cfg.Dataset.Split
	if f.split != "" {
		splitName = f.split
	}
	split, err := dataset.ParseSplit(splitName)
	if err != nil {
		return nil, pipeline.Options{}, err
	}
	src, err := dataset.Open(root, split)
	if errors.IsType(err, errors.ErrorTypeNotFound) && (f.download || a.cfg.Dataset.Download) {
		a.log.Info("dataset files missing, downloading", zap.String("root", root), zap.String("split", string(split)))
		if _, err := dataset.Download(ctx, dataset.DownloadOptions{
			Root:   root,
			Split:  split,
			Mirror: a.cfg.Dataset.Mirror,
			Logger: a.log,
		}); err != nil {
			return nil, pipeline.Options{}, err
		}
		src, err = dataset.Open(root, split)
	}
	if err != nil {
		return nil, pipeline.Options{}, err
	}

	opts := pipeline.Options{
		Limit:  a.cfg.Ingest.LimitPerLabel,
		Labels: a.cfg.Ingest.LabelFilter(),
		Logger: a.log,
	}
	if f.limit >= 0 {
		opts.Limit = f.limit
	}
	if len(f.labels) > 0 {
		opts.Labels = f.labels
	}
	opts.Rows, opts.Cols = src.Dimensions()
	return src, opts, nil
}

func (a *app) ingestCommand() *cobra.Command {
	var (
		src        sourceFlags
		batchSize  int
		noCompress bool
		noCreate   bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Group the dataset by label and write it to the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, opts, err := a.openSource(cmd.Context(), &src)
			if err != nil {
				return err
			}
			defer records.Close()

			conn, err := a.connector()
			if err != nil {
				return err
			}
			opts.Write = store.WriteAllOptions{
				WriteOptions: store.WriteOptions{
					Table:     a.cfg.Ingest.Table,
					BatchSize: a.cfg.Ingest.BatchSize,
					Compress:  a.cfg.Ingest.Compress && !noCompress,
				},
				CreateIfMissing: a.cfg.Ingest.CreateIfMissing && !noCreate,
			}
			if batchSize > 0 {
				opts.Write.BatchSize = batchSize
			}

			res, err := pipeline.Ingest(cmd.Context(), conn, records, opts)
			if res != nil {
				if perr := a.print(cmd, res, func() { printIngest(cmd, res) }); perr != nil {
					a.log.Warn("failed to print result", zap.Error(perr))
				}
			}
			return err
		},
	}
	src.register(cmd)
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Rows per INSERT statement (default from config)")
	cmd.Flags().BoolVar(&noCompress, "no-compress", false, "Store raw pixel payloads instead of gzip")
	cmd.Flags().BoolVar(&noCreate, "no-create", false, "Do not create the table when it is missing")
	return cmd
}

func printIngest(cmd *cobra.Command, res *pipeline.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: consumed %d, written %d in %s\n", res.RunID, res.Consumed, res.Written, res.Duration)
	printCounts(cmd, res.Counts)
}

func printCounts(cmd *cobra.Command, counts map[int]int) {
	labels := make([]int, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	for _, l := range labels {
		fmt.Fprintf(cmd.OutOrStdout(), "  %d: %d\n", l, counts[l])
	}
}

func (a *app) group(cmd *cobra.Command, f *sourceFlags) (*grouper.Result, error) {
	records, opts, err := a.openSource(cmd.Context(), f)
	if err != nil {
		return nil, err
	}
	defer records.Close()
	return pipeline.Group(cmd.Context(), records, opts)
}

func (a *app) groupCommand() *cobra.Command {
	var src sourceFlags
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Group the dataset by label and print the bucket sizes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.group(cmd, &src)
			if err != nil {
				return err
			}
			summary := struct {
				Consumed  int         `json:"consumed"`
				Stopped   bool        `json:"stopped"`
				Discarded int         `json:"discarded"`
				Counts    map[int]int `json:"counts"`
			}{res.Consumed, res.Stopped, res.Discarded, res.Buckets.Counts()}
			return a.print(cmd, summary, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "consumed %d, discarded %d, stopped early: %t\n",
					res.Consumed, res.Discarded, res.Stopped)
				printCounts(cmd, summary.Counts)
			})
		},
	}
	src.register(cmd)
	return cmd
}

func (a *app) exportCommand() *cobra.Command {
	var (
		src    sourceFlags
		out    string
		format string
		alg    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Group the dataset by label and write it to folders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				out = a.cfg.Export.OutRoot
			}
			if format == "" {
				format = a.cfg.Export.Format
			}
			if alg == "" {
				alg = a.cfg.Export.Compression
			}

			res, err := a.group(cmd, &src)
			if err != nil {
				return err
			}

			var n int
			switch format {
			case "png", "":
				n, err = export.Folders(res.Buckets, out, a.log)
			case "idx":
				var algorithm compression.Algorithm
				if algorithm, err = compression.ParseAlgorithm(alg); err != nil {
					return err
				}
				n, err = export.IDX(res.Buckets, out, algorithm, a.log)
			default:
				return fmt.Errorf("unknown export format %q", format)
			}
			if err != nil {
				return err
			}
			return a.print(cmd, map[string]interface{}{"out_root": out, "format": format, "records": n}, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d records to %s\n", n, out)
			})
		},
	}
	src.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output directory (default from config)")
	cmd.Flags().StringVar(&format, "format", "", "Export format: png or idx (default from config)")
	cmd.Flags().StringVar(&alg, "compression", "", "Compression for idx files: none, gzip, zstd, lz4, snappy, s2")
	return cmd
}

func (a *app) countCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Count stored rows per label",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := a.connector()
			if err != nil {
				return err
			}
			counts, err := store.NewReader(conn, store.WithLogger(a.log)).CountByLabel(cmd.Context(), a.cfg.Ingest.Table)
			if err != nil {
				return err
			}
			return a.print(cmd, counts, func() { printCounts(cmd, counts) })
		},
	}
}

func (a *app) getCommand() *cobra.Command {
	var (
		id     int64
		label  int
		saveTo string
	)
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Read one stored image by id or label",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var q store.Query
			if cmd.Flags().Changed("id") {
				q.ID = &id
			}
			if cmd.Flags().Changed("label") {
				q.Label = &label
			}

			conn, err := a.connector()
			if err != nil {
				return err
			}
			img, found, err := store.NewReader(conn, store.WithLogger(a.log)).GetOne(cmd.Context(), a.cfg.Ingest.Table, q)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no matching row in %s", a.cfg.Ingest.Table)
			}
			if saveTo != "" {
				if err := export.SavePNG(saveTo, img.Image); err != nil {
					return err
				}
			}

			summary := map[string]interface{}{
				"id":      img.ID,
				"label":   img.Label,
				"gzipped": img.Gzipped,
				"rows":    img.Image.Rows,
				"cols":    img.Image.Cols,
			}
			return a.print(cmd, summary, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "id %d label %d (%dx%d, gzipped %t)\n",
					img.ID, img.Label, img.Image.Rows, img.Image.Cols, img.Gzipped)
				if saveTo != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "saved to %s\n", saveTo)
				}
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Row id")
	cmd.Flags().IntVar(&label, "label", 0, "Digit label; the lowest id wins")
	cmd.Flags().StringVar(&saveTo, "save-to", "", "Write the image as a PNG file")
	return cmd
}

func (a *app) initTableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init-table",
		Short: "Create the table and its label index if missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := a.connector()
			if err != nil {
				return err
			}
			if err := store.NewSchemaManager(conn, store.WithLogger(a.log)).EnsureTable(cmd.Context(), a.cfg.Ingest.Table); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "table %s is ready\n", a.cfg.Ingest.Table)
			return nil
		},
	}
}

func (a *app) downloadCommand() *cobra.Command {
	var (
		root   string
		split  string
		mirror string
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the IDX files for a split",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if root == "" {
				root = a.cfg.Dataset.Root
			}
			if split == "" {
				split = a.cfg.Dataset.Split
			}
			if mirror == "" {
				mirror = a.cfg.Dataset.Mirror
			}
			s, err := dataset.ParseSplit(split)
			if err != nil {
				return err
			}
			paths, err := dataset.Download(cmd.Context(), dataset.DownloadOptions{
				Root:   root,
				Split:  s,
				Mirror: mirror,
				Logger: a.log,
			})
			if err != nil {
				return err
			}
			return a.print(cmd, paths, func() {
				if len(paths) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "already downloaded")
				}
				for _, p := range paths {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
			})
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "Destination directory (default from config)")
	cmd.Flags().StringVar(&split, "split", "", "Dataset split: train or test")
	cmd.Flags().StringVar(&mirror, "mirror", "", "Base URL of the mirror")
	return cmd
}
