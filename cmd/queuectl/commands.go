package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungbote/deepmed-backend/internal/jobs/queue"
)

func newEnqueueCmd(open func() (JobQueue, func() error)) *cobra.Command {
	var (
		documentID string
		operation  string
		payload    string
	)
	cmd := &cobra.Command{
		Use:   "enqueue <queue>",
		Short: "Add a job to a queue",
		Long: `Add a job to one of the ingestion queues. Either pass --document (and --operation for
pdf-processing) or a raw JSON body with --payload; "-" reads the body from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			raw, err := enqueueBody(cmd.InOrStdin(), name, documentID, operation, payload)
			if err != nil {
				return err
			}
			jq, closeFn := open()
			defer closeFn()
			id, err := jq.EnqueueRaw(cmd.Context(), name, raw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s job %s\n", name, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&documentID, "document", "", "Document id")
	cmd.Flags().StringVar(&operation, "operation", queue.OperationConvertToMarkdown, "pdf-processing operation")
	cmd.Flags().StringVar(&payload, "payload", "", "Raw JSON payload")
	return cmd
}

func enqueueBody(stdin io.Reader, name, documentID, operation, payload string) ([]byte, error) {
	switch {
	case payload == "-":
		return io.ReadAll(stdin)
	case payload != "":
		return []byte(payload), nil
	case strings.TrimSpace(documentID) == "":
		return nil, fmt.Errorf("either --document or --payload is required")
	}
	body := map[string]string{"documentId": documentID}
	if name == string(queue.PDFProcessing) {
		body["operation"] = operation
	}
	return json.Marshal(body)
}

func newStatusCmd(open func() (JobQueue, func() error)) *cobra.Command {
	return &cobra.Command{
		Use:   "status [queue]",
		Short: "Show job counts for one queue or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jq, closeFn := open()
			defer closeFn()
			if len(args) == 1 {
				c, err := jq.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"queue": args[0], "counts": c, "total": c.Total()})
			}
			all, err := jq.StatusAll(cmd.Context())
			if err != nil {
				return err
			}
			out := make(map[string]queue.Counts, len(all))
			for n, c := range all {
				out[string(n)] = c
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newJobCmd(open func() (JobQueue, func() error)) *cobra.Command {
	return &cobra.Command{
		Use:   "job <queue> <id>",
		Short: "Show one job's state, attempts, last error and result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jq, closeFn := open()
			defer closeFn()
			j, err := jq.Job(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), j)
		},
	}
}
