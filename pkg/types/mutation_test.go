package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingRemote captures which Remote method a mutation dispatched to.
type recordingRemote struct {
	calls []string
	key   Key
	body  Record
}

func (r *recordingRemote) Insert(_ context.Context, table string, record Record) error {
	r.calls = append(r.calls, "insert:"+table)
	r.body = record
	return nil
}

func (r *recordingRemote) Update(_ context.Context, table string, key Key, fields Record) error {
	r.calls = append(r.calls, "update:"+table)
	r.key = key
	r.body = fields
	return nil
}

func (r *recordingRemote) Delete(_ context.Context, table string, key Key) error {
	r.calls = append(r.calls, "delete:"+table)
	r.key = key
	return nil
}

func TestMutationApplyTo(t *testing.T) {
	tests := []struct {
		name     string
		mutation Mutation
		wantCall string
		wantOp   Operation
	}{
		{
			name:     "insert dispatches to Remote.Insert",
			mutation: Insert{TableName: "tasks", Record: Record{"title": "Order vaccines"}},
			wantCall: "insert:tasks",
			wantOp:   OpInsert,
		},
		{
			name:     "update dispatches to Remote.Update",
			mutation: Update{TableName: "tasks", Key: IDKey("t-1"), Fields: Record{"status": "completed"}},
			wantCall: "update:tasks",
			wantOp:   OpUpdate,
		},
		{
			name:     "delete dispatches to Remote.Delete",
			mutation: Delete{TableName: "incidents", Key: IDKey("i-9")},
			wantCall: "delete:incidents",
			wantOp:   OpDelete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recordingRemote{}
			require.NoError(t, tt.mutation.ApplyTo(context.Background(), r))
			assert.Equal(t, []string{tt.wantCall}, r.calls)
			assert.Equal(t, tt.wantOp, tt.mutation.Operation())
		})
	}
}

func TestEncodeDecodeMutation(t *testing.T) {
	update := Update{TableName: "policies", Key: IDKey("p-1"), Fields: Record{"status": "reviewed"}}

	data, err := EncodeMutation(update)
	require.NoError(t, err)

	got, err := DecodeMutation("policies", OpUpdate, data)
	require.NoError(t, err)

	decoded, ok := got.(Update)
	require.True(t, ok, "expected Update, got %T", got)
	assert.Equal(t, "policies", decoded.Table())
	assert.Equal(t, "id", decoded.Key.Column)
	assert.Equal(t, "p-1", decoded.Key.Value)
	assert.Equal(t, "reviewed", decoded.Fields["status"])
}

func TestDecodeMutation_Errors(t *testing.T) {
	_, err := DecodeMutation("tasks", OpDelete, []byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidMutation)

	_, err = DecodeMutation("tasks", Operation("upsert"), []byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidMutation)

	_, err = DecodeMutation("tasks", OpInsert, []byte(`not json`))
	assert.Error(t, err)
}

func TestUpdateFromRecord(t *testing.T) {
	u, err := UpdateFromRecord("tasks", Record{"id": "t-7", "status": "completed", "notes": "done"})
	require.NoError(t, err)
	assert.Equal(t, IDKey("t-7"), u.Key)
	assert.Equal(t, Record{"status": "completed", "notes": "done"}, u.Fields)

	_, err = UpdateFromRecord("tasks", Record{"status": "completed"})
	assert.ErrorIs(t, err, ErrInvalidMutation)
}

func TestValidateMutation(t *testing.T) {
	tests := []struct {
		name     string
		mutation Mutation
		wantErr  error
	}{
		{"nil mutation", nil, ErrInvalidMutation},
		{"missing table", Insert{Record: Record{"a": 1}}, ErrInvalidTable},
		{"insert without record", Insert{TableName: "tasks"}, ErrInvalidMutation},
		{"update without key", Update{TableName: "tasks", Fields: Record{"a": 1}}, ErrInvalidMutation},
		{"update without fields", Update{TableName: "tasks", Key: IDKey("x")}, ErrInvalidMutation},
		{"delete with empty key value", Delete{TableName: "tasks", Key: IDKey("")}, ErrInvalidMutation},
		{"valid delete", Delete{TableName: "tasks", Key: IDKey("x")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMutation(tt.mutation)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRecordID(t *testing.T) {
	assert.Equal(t, "42", Record{"id": 42}.ID())
	assert.Equal(t, "", Record{"name": "x"}.ID())
	assert.Equal(t, "", Record{"id": nil}.ID())
}
