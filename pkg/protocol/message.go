package protocol

// Message is a server-to-client notification.
type Message interface {
	// Type returns the wire message type.
	Type() MessageType

	// payload returns the value encoded as the envelope payload.
	payload() any
}

// FileList answers ListFiles.
type FileList struct {
	Files []string
}

// FileContent answers GetFile.
type FileContent struct {
	File    string `json:"file"`
	Content string `json:"content"`
}

// FileUpdated is broadcast to the other sessions after an edit.
type FileUpdated struct {
	File    string `json:"file"`
	Content string `json:"content"`
}

// FileCreated confirms CreateFile.
type FileCreated struct {
	Name string
}

// FileRenamed confirms RenameFile.
type FileRenamed struct {
	OldName string `json:"oldName"`
	NewName string `json:"newName"`
}

// FileDeleted confirms DeleteFile.
type FileDeleted struct {
	Name string
}

// Error reports a failed operation to the session that submitted it.
type Error struct {
	Operation MessageType `json:"operation,omitempty"`
	File      string      `json:"file,omitempty"`
	Code      string      `json:"code"`
	Message   string      `json:"message"`
}

func (FileList) Type() MessageType    { return TypeFileList }
func (FileContent) Type() MessageType { return TypeFileContent }
func (FileUpdated) Type() MessageType { return TypeFileUpdated }
func (FileCreated) Type() MessageType { return TypeFileCreated }
func (FileRenamed) Type() MessageType { return TypeFileRenamed }
func (FileDeleted) Type() MessageType { return TypeFileDeleted }
func (Error) Type() MessageType       { return TypeError }

func (m FileList) payload() any {
	if m.Files == nil {
		return []string{}
	}
	return m.Files
}
func (m FileContent) payload() any { return m }
func (m FileUpdated) payload() any { return m }
func (m FileCreated) payload() any { return m.Name }
func (m FileRenamed) payload() any { return m }
func (m FileDeleted) payload() any { return m.Name }
func (m Error) payload() any       { return m }
