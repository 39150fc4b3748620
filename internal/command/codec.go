package command

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

type decoder func(data []byte) (Command, error)

func decodeAs[T Command](data []byte) (Command, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

var decoders = map[Kind]decoder{
	KindUpdateCell:           decodeAs[UpdateCell],
	KindUpdateCellPosition:   decodeAs[UpdateCellPosition],
	KindClearCell:            decodeAs[ClearCell],
	KindSetBorder:            decodeAs[SetBorder],
	KindSortCells:            decodeAs[SortCells],
	KindDeleteContent:        decodeAs[DeleteContent],
	KindSetFormatting:        decodeAs[SetFormatting],
	KindClearFormatting:      decodeAs[ClearFormatting],
	KindSetDecimal:           decodeAs[SetDecimal],
	KindAddConditionalFormat: decodeAs[AddConditionalFormat],
	KindAddMerge:             decodeAs[AddMerge],
	KindRemoveMerge:          decodeAs[RemoveMerge],
	KindAddColumnsRows:       decodeAs[AddColumnsRows],
	KindRemoveColumnsRows:    decodeAs[RemoveColumnsRows],
	KindResizeColumnsRows:    decodeAs[ResizeColumnsRows],
	KindCreateSheet:          decodeAs[CreateSheet],
	KindDeleteSheet:          decodeAs[DeleteSheet],
	KindRenameSheet:          decodeAs[RenameSheet],
	KindStart:                decodeAs[Start],
	KindRequestUndo:          decodeAs[RequestUndo],
	KindRequestRedo:          decodeAs[RequestRedo],
	KindActivateSheet:        decodeAs[ActivateSheet],
	KindSelectCell:           decodeAs[SelectCell],
	KindSetViewportOffset:    decodeAs[SetViewportOffset],
	KindEvaluateCells:        decodeAs[EvaluateCells],
}

// Marshal encodes cmd as a JSON object with its kind in the "type" field.
func Marshal(cmd Command) ([]byte, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("command: marshal %s: %w", cmd.Kind(), err)
	}
	return sjson.SetBytes(body, "type", string(cmd.Kind()))
}

// Unmarshal decodes a command produced by Marshal.
func Unmarshal(data []byte) (Command, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformed
	}
	typ := gjson.GetBytes(data, "type")
	if !typ.Exists() || typ.String() == "" {
		return nil, ErrMissingType
	}
	kind := Kind(typ.String())
	dec, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	cmd, err := dec(data)
	if err != nil {
		return nil, fmt.Errorf("command: decode %s: %w", kind, err)
	}
	return cmd, nil
}

// PeekKind returns the kind of an encoded command without decoding it.
func PeekKind(data []byte) Kind {
	return Kind(gjson.GetBytes(data, "type").String())
}

// List is a JSON-encodable command sequence.
type List []Command

// MarshalJSON implements json.Marshaler.
func (l List) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, cmd := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := Marshal(cmd)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *List) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	if res.Type == gjson.Null {
		*l = nil
		return nil
	}
	if !res.IsArray() {
		return fmt.Errorf("%w: expected array", ErrMalformed)
	}
	items := res.Array()
	out := make(List, 0, len(items))
	for _, item := range items {
		cmd, err := Unmarshal([]byte(item.Raw))
		if err != nil {
			return err
		}
		out = append(out, cmd)
	}
	*l = out
	return nil
}
