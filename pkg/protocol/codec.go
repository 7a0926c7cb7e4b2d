package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed indicates a frame that is not a valid envelope or whose
	// payload does not match its type.
	ErrMalformed = errors.New("malformed message")

	// ErrUnknownType indicates an envelope with an unrecognised type.
	ErrUnknownType = errors.New("unknown message type")
)

// Envelope is the JSON frame every message travels in.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode serializes a server message into an envelope.
func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg.payload())
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msg.Type(), err)
	}
	return json.Marshal(Envelope{Type: msg.Type(), Payload: payload})
}

// EncodeOperation serializes a client operation into an envelope. Used by
// Go clients and tests.
func EncodeOperation(op Operation) ([]byte, error) {
	var payload any
	switch o := op.(type) {
	case ListFiles:
		return json.Marshal(Envelope{Type: o.Type()})
	case GetFile:
		payload = o.Name
	case EditFile:
		payload = o
	case CreateFile:
		payload = o.Name
	case RenameFile:
		payload = o
	case DeleteFile:
		payload = o.Name
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, op)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", op.Type(), err)
	}
	return json.Marshal(Envelope{Type: op.Type(), Payload: raw})
}

// DecodeEnvelope parses the outer frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// DecodeOperation parses a client frame into its typed Operation.
//
// Returns ErrMalformed or ErrUnknownType (wrapped). The envelope type is
// returned alongside errors when it could be read, so callers can report
// which operation failed.
func DecodeOperation(data []byte) (Operation, MessageType, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, "", err
	}

	switch env.Type {
	case TypeListFiles:
		return ListFiles{}, env.Type, nil

	case TypeGetFile:
		name, err := decodeName(env)
		return GetFile{Name: name}, env.Type, err

	case TypeCreateFile:
		name, err := decodeName(env)
		return CreateFile{Name: name}, env.Type, err

	case TypeDeleteFile:
		name, err := decodeName(env)
		return DeleteFile{Name: name}, env.Type, err

	case TypeEditFile:
		var op EditFile
		err := decodeObject(env, &op)
		return op, env.Type, err

	case TypeRenameFile:
		var op RenameFile
		err := decodeObject(env, &op)
		return op, env.Type, err

	default:
		return nil, env.Type, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// DecodeMessage parses a server frame. Used by Go clients and tests.
func DecodeMessage(data []byte) (Message, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeFileList:
		var files []string
		if err := decodePayload(env, &files); err != nil {
			return nil, err
		}
		return FileList{Files: files}, nil
	case TypeFileContent:
		var m FileContent
		err := decodePayload(env, &m)
		return m, err
	case TypeFileUpdated:
		var m FileUpdated
		err := decodePayload(env, &m)
		return m, err
	case TypeFileCreated:
		name, err := decodeName(env)
		return FileCreated{Name: name}, err
	case TypeFileRenamed:
		var m FileRenamed
		err := decodePayload(env, &m)
		return m, err
	case TypeFileDeleted:
		name, err := decodeName(env)
		return FileDeleted{Name: name}, err
	case TypeError:
		var m Error
		err := decodePayload(env, &m)
		return m, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// decodeName reads a bare JSON string payload.
func decodeName(env Envelope) (string, error) {
	var name string
	if err := decodePayload(env, &name); err != nil {
		return "", err
	}
	return name, nil
}

// decodeObject reads an object payload, rejecting unknown fields so typos
// such as "filename" surface as errors instead of empty names.
func decodeObject(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%w: %s requires a payload", ErrMalformed, env.Type)
	}
	dec := json.NewDecoder(bytes.NewReader(env.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
	}
	return nil
}

func decodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%w: %s requires a payload", ErrMalformed, env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
	}
	return nil
}
