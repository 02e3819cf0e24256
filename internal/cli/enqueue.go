package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/caretrack/pkg/types"
)

func newEnqueueCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a write for the hosted backend",
		Long: `Queues an insert, update or delete. Queued writes are replayed in order by
"caretrack drain" or automatically by "caretrack serve" when connectivity
returns.`,
	}

	var keyColumn string
	insert := &cobra.Command{
		Use:   "insert <table> <json-record>",
		Short: "Queue an insert",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := parseRecord(args[1])
			if err != nil {
				return err
			}
			return e.enqueue(cmd, types.Insert{TableName: args[0], Record: rec})
		},
	}

	update := &cobra.Command{
		Use:   "update <table> <id> <json-fields>",
		Short: "Queue an update of the record whose key column equals id",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseRecord(args[2])
			if err != nil {
				return err
			}
			return e.enqueue(cmd, types.Update{
				TableName: args[0],
				Key:       types.Key{Column: keyColumn, Value: args[1]},
				Fields:    fields,
			})
		},
	}
	update.Flags().StringVar(&keyColumn, "key-column", types.DefaultKeyColumn, "column that identifies the record")

	del := &cobra.Command{
		Use:   "delete <table> <id>",
		Short: "Queue a delete of the record whose key column equals id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.enqueue(cmd, types.Delete{
				TableName: args[0],
				Key:       types.Key{Column: keyColumn, Value: args[1]},
			})
		},
	}
	del.Flags().StringVar(&keyColumn, "key-column", types.DefaultKeyColumn, "column that identifies the record")

	cmd.AddCommand(insert, update, del)
	return cmd
}

func (e *env) enqueue(cmd *cobra.Command, m types.Mutation) error {
	return e.withApp(func(a *app) error {
		id, err := a.queue.Enqueue(cmd.Context(), m)
		if err != nil {
			if errors.Is(err, types.ErrInvalidMutation) || errors.Is(err, types.ErrInvalidTable) {
				return userError(err)
			}
			return sysError(err)
		}
		result := map[string]string{"id": id, "table": m.Table(), "operation": string(m.Operation())}
		return e.emit(result, func(w io.Writer) {
			fmt.Fprintf(w, "Queued %s on %s: %s\n", m.Operation(), m.Table(), id)
		})
	})
}

// parseRecord decodes a JSON object argument.
func parseRecord(s string) (types.Record, error) {
	var rec types.Record
	if err := json.Unmarshal([]byte(s), &rec); err != nil {
		return nil, userError(fmt.Errorf("parse JSON object: %w", err))
	}
	return rec, nil
}
