package e2e

import (
	"fmt"
	"testing"
	"time"

	"github.com/marmos91/dittosync/pkg/engine"
	"github.com/marmos91/dittosync/pkg/protocol"
)

// silence is how long a client must stay quiet to count as not notified.
const silence = 200 * time.Millisecond

// TestEditBroadcastAcrossTransports tests that an edit reaches every other
// session, whichever transport it uses, and never echoes to the editor.
func TestEditBroadcastAcrossTransports(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		browser := tc.DialWebSocket()
		cli := tc.DialTCP()
		other := tc.DialWebSocket()
		tc.WaitForSessions(3)

		browser.Send(protocol.EditFile{File: "notes.txt", Content: "from the browser"})
		want := protocol.FileUpdated{File: "notes.txt", Content: "from the browser"}
		expect(t, cli, want)
		expect(t, other, want)
		browser.ExpectSilence(silence)

		cli.Send(protocol.EditFile{File: "notes.txt", Content: "from the cli"})
		want = protocol.FileUpdated{File: "notes.txt", Content: "from the cli"}
		expect(t, browser, want)
		expect(t, other, want)
		cli.ExpectSilence(silence)

		if got := getFile(t, other, "notes.txt"); got != "from the cli" {
			t.Errorf("Expected latest content, got %q", got)
		}
	})
}

// TestFileLifecycle tests create, edit, rename and delete from one session.
func TestFileLifecycle(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		c := tc.DialTCP()

		c.Send(protocol.CreateFile{Name: "draft.txt"})
		expect(t, c, protocol.FileCreated{Name: "draft.txt"})

		if got := getFile(t, c, "draft.txt"); got != "" {
			t.Errorf("Expected new file to be empty, got %q", got)
		}

		c.Send(protocol.EditFile{File: "draft.txt", Content: "line one\nline two\n"})
		if got := getFile(t, c, "draft.txt"); got != "line one\nline two\n" {
			t.Errorf("Edited content mismatch: %q", got)
		}

		c.Send(protocol.RenameFile{OldName: "draft.txt", NewName: "final.txt"})
		expect(t, c, protocol.FileRenamed{OldName: "draft.txt", NewName: "final.txt"})

		if got := getFile(t, c, "final.txt"); got != "line one\nline two\n" {
			t.Errorf("Rename lost content: %q", got)
		}
		if files := listFiles(t, c); len(files) != 1 || files[0] != "final.txt" {
			t.Errorf("Expected [final.txt], got %v", files)
		}

		c.Send(protocol.DeleteFile{Name: "final.txt"})
		expect(t, c, protocol.FileDeleted{Name: "final.txt"})

		if files := listFiles(t, c); len(files) != 0 {
			t.Errorf("Expected no files after delete, got %v", files)
		}
	})
}

// TestListFiltersBySuffix tests that only text files are listed, sorted.
func TestListFiltersBySuffix(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		c := tc.DialWebSocket()

		for _, name := range []string{"zeta.txt", "image.png", "alpha.txt", "README.md"} {
			c.Send(protocol.CreateFile{Name: name})
			expect(t, c, protocol.FileCreated{Name: name})
		}

		files := listFiles(t, c)
		want := []string{"alpha.txt", "zeta.txt"}
		if !messagesEqual(protocol.FileList{Files: files}, protocol.FileList{Files: want}) {
			t.Errorf("Expected %v, got %v", want, files)
		}

		// Non-text files are still reachable by name
		if got := getFile(t, c, "image.png"); got != "" {
			t.Errorf("Expected empty image.png, got %q", got)
		}
	})
}

// TestStructuralChangesStayPrivateByDefault tests that create, rename and
// delete are confirmed only to the session that asked.
func TestStructuralChangesStayPrivateByDefault(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		actor := tc.DialWebSocket()
		observer := tc.DialTCP()
		tc.WaitForSessions(2)

		actor.Send(protocol.CreateFile{Name: "a.txt"})
		expect(t, actor, protocol.FileCreated{Name: "a.txt"})
		actor.Send(protocol.RenameFile{OldName: "a.txt", NewName: "b.txt"})
		expect(t, actor, protocol.FileRenamed{OldName: "a.txt", NewName: "b.txt"})
		actor.Send(protocol.DeleteFile{Name: "b.txt"})
		expect(t, actor, protocol.FileDeleted{Name: "b.txt"})

		observer.ExpectSilence(silence)
	})
}

// TestBroadcastStructural tests that structural changes reach the other
// sessions when enabled.
func TestBroadcastStructural(t *testing.T) {
	runOnAllConfigsWithEngine(t, engine.Config{BroadcastStructural: true}, func(t *testing.T, tc *TestContext) {
		actor := tc.DialTCP()
		observer := tc.DialWebSocket()
		tc.WaitForSessions(2)

		actor.Send(protocol.CreateFile{Name: "a.txt"})
		expect(t, actor, protocol.FileCreated{Name: "a.txt"})
		expect(t, observer, protocol.FileCreated{Name: "a.txt"})

		actor.Send(protocol.RenameFile{OldName: "a.txt", NewName: "b.txt"})
		expect(t, actor, protocol.FileRenamed{OldName: "a.txt", NewName: "b.txt"})
		expect(t, observer, protocol.FileRenamed{OldName: "a.txt", NewName: "b.txt"})

		actor.Send(protocol.DeleteFile{Name: "b.txt"})
		expect(t, actor, protocol.FileDeleted{Name: "b.txt"})
		expect(t, observer, protocol.FileDeleted{Name: "b.txt"})
	})
}

// TestFailuresAreSilentByDefault tests that precondition failures produce
// no message unless error reporting is enabled.
func TestFailuresAreSilentByDefault(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		c := tc.DialWebSocket()

		c.Send(protocol.GetFile{Name: "missing.txt"})
		c.Send(protocol.DeleteFile{Name: "missing.txt"})
		c.Send(protocol.RenameFile{OldName: "missing.txt", NewName: "other.txt"})
		c.Send(protocol.CreateFile{Name: "../escape.txt"})
		c.ExpectSilence(silence)

		// The connection is still usable
		if files := listFiles(t, c); len(files) != 0 {
			t.Errorf("Expected no files, got %v", files)
		}
	})
}

// TestReportErrors tests the error messages sent when reporting is enabled.
func TestReportErrors(t *testing.T) {
	runOnAllConfigsWithEngine(t, engine.Config{ReportErrors: true}, func(t *testing.T, tc *TestContext) {
		c := tc.DialTCP()
		observer := tc.DialWebSocket()
		tc.WaitForSessions(2)

		e := expectErrorAfter(t, c, protocol.GetFile{Name: "missing.txt"}, protocol.CodeNotFound)
		if e.Operation != protocol.TypeGetFile || e.File != "missing.txt" {
			t.Errorf("Error does not identify the request: %+v", e)
		}

		c.Send(protocol.CreateFile{Name: "taken.txt"})
		expect(t, c, protocol.FileCreated{Name: "taken.txt"})
		c.Send(protocol.CreateFile{Name: "other.txt"})
		expect(t, c, protocol.FileCreated{Name: "other.txt"})

		expectErrorAfter(t, c, protocol.CreateFile{Name: "taken.txt"}, protocol.CodeAlreadyExists)
		expectErrorAfter(t, c, protocol.RenameFile{OldName: "other.txt", NewName: "taken.txt"}, protocol.CodeAlreadyExists)
		expectErrorAfter(t, c, protocol.DeleteFile{Name: "missing.txt"}, protocol.CodeNotFound)
		expectErrorAfter(t, c, protocol.EditFile{File: "../escape.txt", Content: "x"}, protocol.CodeInvalidName)
		expectErrorAfter(t, c, protocol.GetFile{Name: "sub/dir.txt"}, protocol.CodeInvalidName)

		// Errors go to the origin only
		observer.ExpectSilence(silence)

		// Failed operations leave the store untouched
		if got := getFile(t, c, "other.txt"); got != "" {
			t.Errorf("Failed rename changed other.txt: %q", got)
		}
	})
}

// TestDisconnectUnregistersSession tests that closed clients stop counting
// as sessions and stop receiving broadcasts.
func TestDisconnectUnregistersSession(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		editor := tc.DialWebSocket()
		leaving := tc.DialTCP()
		staying := tc.DialWebSocket()
		tc.WaitForSessions(3)

		leaving.Close()
		tc.WaitForSessions(2)

		editor.Send(protocol.EditFile{File: "notes.txt", Content: "after"})
		expect(t, staying, protocol.FileUpdated{File: "notes.txt", Content: "after"})
	})
}

// TestConcurrentEditsAreTotallyOrdered tests that an observer sees
// interleaved edits from several sessions in the order the store applied
// them.
func TestConcurrentEditsAreTotallyOrdered(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		const editsPerClient = 10

		editors := []Client{tc.DialWebSocket(), tc.DialTCP(), tc.DialWebSocket()}
		observer := tc.DialTCP()
		tc.WaitForSessions(len(editors) + 1)

		for i := 0; i < editsPerClient; i++ {
			for j, c := range editors {
				c.Send(protocol.EditFile{
					File:    "shared.txt",
					Content: fmt.Sprintf("editor %d revision %d", j, i),
				})
			}
		}

		var last protocol.FileUpdated
		for i := 0; i < editsPerClient*len(editors); i++ {
			msg := observer.Recv()
			update, ok := msg.(protocol.FileUpdated)
			if !ok {
				t.Fatalf("Expected file-updated, got %s %+v", msg.Type(), msg)
			}
			last = update
		}

		if got := getFile(t, observer, "shared.txt"); got != last.Content {
			t.Errorf("Last broadcast %q does not match stored content %q", last.Content, got)
		}
	})
}

func expectErrorAfter(t *testing.T, c Client, op protocol.Operation, code string) protocol.Error {
	t.Helper()
	c.Send(op)
	return expectError(t, c, code)
}
