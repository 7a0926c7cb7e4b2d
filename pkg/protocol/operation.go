package protocol

// Operation is a request submitted by a client. The set of implementations
// is closed: only the types in this file satisfy it.
type Operation interface {
	// Type returns the wire message type of the operation.
	Type() MessageType

	isOperation()
}

// ListFiles asks for the names of all text files.
type ListFiles struct{}

// GetFile asks for the content of one file.
type GetFile struct {
	Name string
}

// EditFile replaces the content of a file, creating it if needed.
type EditFile struct {
	File    string `json:"file"`
	Content string `json:"content"`
}

// CreateFile creates an empty file.
type CreateFile struct {
	Name string
}

// RenameFile renames a file.
type RenameFile struct {
	OldName string `json:"oldName"`
	NewName string `json:"newName"`
}

// DeleteFile removes a file.
type DeleteFile struct {
	Name string
}

func (ListFiles) Type() MessageType  { return TypeListFiles }
func (GetFile) Type() MessageType    { return TypeGetFile }
func (EditFile) Type() MessageType   { return TypeEditFile }
func (CreateFile) Type() MessageType { return TypeCreateFile }
func (RenameFile) Type() MessageType { return TypeRenameFile }
func (DeleteFile) Type() MessageType { return TypeDeleteFile }

func (ListFiles) isOperation()  {}
func (GetFile) isOperation()    {}
func (EditFile) isOperation()   {}
func (CreateFile) isOperation() {}
func (RenameFile) isOperation() {}
func (DeleteFile) isOperation() {}

// Target returns the file name an operation refers to, for logging and
// error reports. Rename reports its source. List has no target.
func Target(op Operation) string {
	switch o := op.(type) {
	case GetFile:
		return o.Name
	case EditFile:
		return o.File
	case CreateFile:
		return o.Name
	case RenameFile:
		return o.OldName
	case DeleteFile:
		return o.Name
	default:
		return ""
	}
}
