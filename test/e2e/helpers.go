package e2e

import (
	"testing"

	"github.com/marmos91/dittosync/pkg/engine"
	"github.com/marmos91/dittosync/pkg/protocol"
)

// runOnAllConfigs runs testFunc once per store configuration. The S3
// configurations join when LOCALSTACK_ENDPOINT is set.
func runOnAllConfigs(t *testing.T, testFunc func(t *testing.T, tc *TestContext)) {
	t.Helper()
	runOnAllConfigsWithEngine(t, engine.Config{}, testFunc)
}

// runOnAllConfigsWithEngine is runOnAllConfigs with explicit engine
// settings.
func runOnAllConfigsWithEngine(t *testing.T, engineCfg engine.Config, testFunc func(t *testing.T, tc *TestContext)) {
	t.Helper()

	configs := AllConfigurations()
	if LocalstackEndpoint() != "" {
		configs = append(configs, S3Configurations()...)
	}

	for _, config := range configs {
		t.Run(config.Name, func(t *testing.T) {
			if config.Store == StoreS3 {
				helper := NewLocalstackHelper(t)
				defer helper.Cleanup()
				SetupS3Config(t, config, helper)
			}

			tc := NewTestContextWithEngine(t, config, engineCfg)
			defer tc.Cleanup()

			testFunc(t, tc)
		})
	}
}

// expect receives one message and fails unless it equals want.
func expect(t *testing.T, c Client, want protocol.Message) {
	t.Helper()

	got := c.Recv()
	if !messagesEqual(got, want) {
		t.Fatalf("Expected %s %+v, got %s %+v", want.Type(), want, got.Type(), got)
	}
}

// expectError receives one message and fails unless it is an error with
// the given code.
func expectError(t *testing.T, c Client, code string) protocol.Error {
	t.Helper()

	got := c.Recv()
	e, ok := got.(protocol.Error)
	if !ok {
		t.Fatalf("Expected error %s, got %s %+v", code, got.Type(), got)
	}
	if e.Code != code {
		t.Fatalf("Expected error code %s, got %s (%s)", code, e.Code, e.Message)
	}
	return e
}

// listFiles asks c for the file list and returns it.
func listFiles(t *testing.T, c Client) []string {
	t.Helper()

	c.Send(protocol.ListFiles{})
	got := c.Recv()
	list, ok := got.(protocol.FileList)
	if !ok {
		t.Fatalf("Expected file-list, got %s %+v", got.Type(), got)
	}
	return list.Files
}

// getFile asks c for a file and returns its content.
func getFile(t *testing.T, c Client, name string) string {
	t.Helper()

	c.Send(protocol.GetFile{Name: name})
	got := c.Recv()
	content, ok := got.(protocol.FileContent)
	if !ok {
		t.Fatalf("Expected file-content for %s, got %s %+v", name, got.Type(), got)
	}
	if content.File != name {
		t.Fatalf("Expected content of %s, got %s", name, content.File)
	}
	return content.Content
}

func messagesEqual(a, b protocol.Message) bool {
	if a.Type() != b.Type() {
		return false
	}
	if la, ok := a.(protocol.FileList); ok {
		lb := b.(protocol.FileList)
		if len(la.Files) != len(lb.Files) {
			return false
		}
		for i := range la.Files {
			if la.Files[i] != lb.Files[i] {
				return false
			}
		}
		return true
	}
	return a == b
}
