// Package protocol defines the DittoSync message contract: the operations
// clients submit, the messages the server sends back, and the JSON envelope
// both travel in.
//
// Every frame on the wire, whatever the transport, is one envelope:
//
//	{"type": "edit-file", "payload": {"file": "notes.txt", "content": "..."}}
//
// Payload shapes follow the message type: a bare string for single-name
// messages, an object for edits and renames, an array for the file list.
package protocol

// MessageType is the value of the envelope's "type" field.
type MessageType string

// Client to server.
const (
	TypeListFiles  MessageType = "list-files"
	TypeGetFile    MessageType = "get-file"
	TypeEditFile   MessageType = "edit-file"
	TypeCreateFile MessageType = "create-file"
	TypeRenameFile MessageType = "rename-file"
	TypeDeleteFile MessageType = "delete-file"
)

// Server to client.
const (
	TypeFileList    MessageType = "file-list"
	TypeFileContent MessageType = "file-content"
	TypeFileUpdated MessageType = "file-updated"
	TypeFileCreated MessageType = "file-created"
	TypeFileRenamed MessageType = "file-renamed"
	TypeFileDeleted MessageType = "file-deleted"
	TypeError       MessageType = "error"
)

// Error codes carried by Error messages.
const (
	CodeNotFound      = "not_found"
	CodeAlreadyExists = "already_exists"
	CodeInvalidName   = "invalid_name"
	CodeIOFailure     = "io_failure"
	CodeBadRequest    = "bad_request"
)
