package types

import (
	"context"
	"encoding/json"
	"fmt"
)

// Operation names the kind of write a mutation performs.
type Operation string

// Mutation operations.
const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// DefaultKeyColumn is the column used to identify records when a payload
// does not name one.
const DefaultKeyColumn = "id"

// Record is an opaque row as exchanged with the remote backend.
type Record map[string]any

// ID returns the record's id column formatted as a string, or "" when the
// record has none.
func (r Record) ID() string {
	v, ok := r[DefaultKeyColumn]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Key identifies a single remote record by column value.
type Key struct {
	Column string `json:"column"`
	Value  any    `json:"value"`
}

// IDKey returns a Key on the default id column.
func IDKey(value any) Key {
	return Key{Column: DefaultKeyColumn, Value: value}
}

// String formats the key value.
func (k Key) String() string {
	return fmt.Sprint(k.Value)
}

func (k Key) valid() bool {
	return k.Column != "" && k.Value != nil && k.String() != ""
}

// Mutation is a queued write. The set of variants is closed: Insert, Update
// and Delete. Each variant replays itself with ApplyTo, so there is no
// operation that the sync queue can fail to dispatch.
type Mutation interface {
	// Table returns the target collection name.
	Table() string
	// Operation returns the variant's operation tag.
	Operation() Operation
	// ApplyTo performs the write against the remote backend.
	ApplyTo(ctx context.Context, r Remote) error

	payload() mutationPayload
}

// Insert creates Record in Table.
type Insert struct {
	TableName string
	Record    Record
}

// Update sets Fields on the record in Table matching Key.
type Update struct {
	TableName string
	Key       Key
	Fields    Record
}

// Delete removes the record in Table matching Key.
type Delete struct {
	TableName string
	Key       Key
}

var (
	_ Mutation = Insert{}
	_ Mutation = Update{}
	_ Mutation = Delete{}
)

func (m Insert) Table() string        { return m.TableName }
func (m Insert) Operation() Operation { return OpInsert }

// ApplyTo calls Remote.Insert.
func (m Insert) ApplyTo(ctx context.Context, r Remote) error {
	return r.Insert(ctx, m.TableName, m.Record)
}

func (m Insert) payload() mutationPayload { return mutationPayload{Record: m.Record} }

func (m Update) Table() string        { return m.TableName }
func (m Update) Operation() Operation { return OpUpdate }

// ApplyTo calls Remote.Update.
func (m Update) ApplyTo(ctx context.Context, r Remote) error {
	return r.Update(ctx, m.TableName, m.Key, m.Fields)
}

func (m Update) payload() mutationPayload { return mutationPayload{Key: &m.Key, Fields: m.Fields} }

func (m Delete) Table() string        { return m.TableName }
func (m Delete) Operation() Operation { return OpDelete }

// ApplyTo calls Remote.Delete.
func (m Delete) ApplyTo(ctx context.Context, r Remote) error {
	return r.Delete(ctx, m.TableName, m.Key)
}

func (m Delete) payload() mutationPayload { return mutationPayload{Key: &m.Key} }

// UpdateFromRecord builds an Update from a flat payload that carries its own
// id column. The id becomes the key and the remaining columns the fields.
func UpdateFromRecord(table string, rec Record) (Update, error) {
	id, ok := rec[DefaultKeyColumn]
	if !ok || id == nil {
		return Update{}, fmt.Errorf("%w: update payload has no %s", ErrInvalidMutation, DefaultKeyColumn)
	}
	fields := make(Record, len(rec))
	for k, v := range rec {
		if k != DefaultKeyColumn {
			fields[k] = v
		}
	}
	return Update{TableName: table, Key: IDKey(id), Fields: fields}, nil
}

// ValidateMutation checks that a mutation can be replayed: a table name is
// present, inserts carry a record, updates carry a key and at least one
// field, deletes carry a key.
func ValidateMutation(m Mutation) error {
	if m == nil {
		return ErrInvalidMutation
	}
	if m.Table() == "" {
		return ErrInvalidTable
	}
	switch v := m.(type) {
	case Insert:
		if len(v.Record) == 0 {
			return fmt.Errorf("%w: insert without record", ErrInvalidMutation)
		}
	case Update:
		if !v.Key.valid() {
			return fmt.Errorf("%w: update without key", ErrInvalidMutation)
		}
		if len(v.Fields) == 0 {
			return fmt.Errorf("%w: update without fields", ErrInvalidMutation)
		}
	case Delete:
		if !v.Key.valid() {
			return fmt.Errorf("%w: delete without key", ErrInvalidMutation)
		}
	}
	return nil
}

// mutationPayload is the persisted form of a mutation body. The operation
// and table are stored alongside it.
type mutationPayload struct {
	Key    *Key   `json:"key,omitempty"`
	Record Record `json:"record,omitempty"`
	Fields Record `json:"fields,omitempty"`
}

// EncodeMutation serializes a mutation body for storage.
func EncodeMutation(m Mutation) ([]byte, error) {
	data, err := json.Marshal(m.payload())
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", m.Operation(), err)
	}
	return data, nil
}

// DecodeMutation rebuilds a mutation from its stored table, operation and
// payload.
func DecodeMutation(table string, op Operation, data []byte) (Mutation, error) {
	var p mutationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshaling %s payload: %w", op, err)
	}
	switch op {
	case OpInsert:
		return Insert{TableName: table, Record: p.Record}, nil
	case OpUpdate:
		if p.Key == nil {
			return nil, fmt.Errorf("%w: stored update has no key", ErrInvalidMutation)
		}
		return Update{TableName: table, Key: *p.Key, Fields: p.Fields}, nil
	case OpDelete:
		if p.Key == nil {
			return nil, fmt.Errorf("%w: stored delete has no key", ErrInvalidMutation)
		}
		return Delete{TableName: table, Key: *p.Key}, nil
	}
	return nil, fmt.Errorf("%w: unknown operation %q", ErrInvalidMutation, op)
}

// ParseOperation converts a user-supplied operation name.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OpInsert, OpUpdate, OpDelete:
		return op, nil
	}
	return "", fmt.Errorf("%w: unknown operation %q", ErrInvalidMutation, s)
}
