package engine

import (
	"context"
	"slices"
	"strings"

	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/protocol"
)

// Handlers run with e.mu held. Each one validates names before touching the
// store and maps store errors through outcomeFromError; none of them send
// anything themselves.

// handleList returns the sorted names carrying the text suffix.
func (e *Engine) handleList(ctx context.Context) result {
	names, err := e.store.List(ctx)
	if err != nil {
		return result{outcome: outcomeFromError(err)}
	}

	files := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasSuffix(name, e.config.TextSuffix) {
			files = append(files, name)
		}
	}
	slices.Sort(files)

	logger.Debug("LIST: %d files (%d entries in store)", len(files), len(names))
	return result{outcome: ok(), reply: protocol.FileList{Files: files}}
}

// handleGet reads one file for the origin.
func (e *Engine) handleGet(ctx context.Context, op protocol.GetFile) result {
	if out, valid := validateNames(op.Name); !valid {
		return result{outcome: out}
	}

	content, err := e.store.Read(ctx, op.Name)
	if err != nil {
		return result{outcome: outcomeFromError(err)}
	}

	logger.Debug("GET: file='%s' size=%d", op.Name, len(content))
	return result{
		outcome: ok(),
		reply:   protocol.FileContent{File: op.Name, Content: content},
	}
}

// handleEdit overwrites (or creates) a file and notifies the other sessions.
// The editor receives nothing: it already has the content.
func (e *Engine) handleEdit(ctx context.Context, op protocol.EditFile) result {
	if out, valid := validateNames(op.File); !valid {
		return result{outcome: out}
	}

	if err := e.store.Write(ctx, op.File, op.Content); err != nil {
		return result{outcome: outcomeFromError(err)}
	}

	logger.Info("EDIT: file='%s' size=%d", op.File, len(op.Content))
	return result{
		outcome: ok(),
		notice:  protocol.FileUpdated{File: op.File, Content: op.Content},
	}
}

// handleCreate creates an empty file. An existing file is left untouched.
func (e *Engine) handleCreate(ctx context.Context, op protocol.CreateFile) result {
	if out, valid := validateNames(op.Name); !valid {
		return result{outcome: out}
	}

	if err := e.store.Create(ctx, op.Name); err != nil {
		return result{outcome: outcomeFromError(err)}
	}

	logger.Info("CREATE: file='%s'", op.Name)
	msg := protocol.FileCreated{Name: op.Name}
	return result{outcome: ok(), reply: msg, notice: msg}
}

// handleRename moves a file to a free name, preserving its content.
func (e *Engine) handleRename(ctx context.Context, op protocol.RenameFile) result {
	if out, valid := validateNames(op.OldName, op.NewName); !valid {
		return result{outcome: out}
	}

	if err := e.store.Rename(ctx, op.OldName, op.NewName); err != nil {
		return result{outcome: outcomeFromError(err)}
	}

	logger.Info("RENAME: '%s' -> '%s'", op.OldName, op.NewName)
	msg := protocol.FileRenamed{OldName: op.OldName, NewName: op.NewName}
	return result{outcome: ok(), reply: msg, notice: msg}
}

// handleDelete removes a file.
func (e *Engine) handleDelete(ctx context.Context, op protocol.DeleteFile) result {
	if out, valid := validateNames(op.Name); !valid {
		return result{outcome: out}
	}

	if err := e.store.Remove(ctx, op.Name); err != nil {
		return result{outcome: outcomeFromError(err)}
	}

	logger.Info("DELETE: file='%s'", op.Name)
	msg := protocol.FileDeleted{Name: op.Name}
	return result{outcome: ok(), reply: msg, notice: msg}
}
