package e2e

import (
	"fmt"
	"strings"
	"testing"

	"github.com/marmos91/dittosync/pkg/protocol"
)

// BenchmarkEditFanOut measures the latency of one edit reaching every
// observer, per store and audience size.
func BenchmarkEditFanOut(b *testing.B) {
	for _, name := range []string{"memory", "filesystem", "badger"} {
		for _, observers := range []int{1, 8, 32} {
			b.Run(fmt.Sprintf("%s/observers=%d", name, observers), func(b *testing.B) {
				benchmarkEditFanOut(b, name, observers)
			})
		}
	}
}

func benchmarkEditFanOut(b *testing.B, configName string, observers int) {
	tc := NewTestContext(b, GetConfiguration(configName))
	defer tc.Cleanup()

	editor := tc.DialTCP()
	clients := make([]Client, observers)
	for i := range clients {
		if i%2 == 0 {
			clients[i] = tc.DialWebSocket()
		} else {
			clients[i] = tc.DialTCP()
		}
	}
	tc.WaitForSessions(observers + 1)

	content := strings.Repeat("x", 4096)
	b.SetBytes(int64(len(content) * observers))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		editor.Send(protocol.EditFile{File: "bench.txt", Content: content})
		for _, c := range clients {
			if _, ok := c.Recv().(protocol.FileUpdated); !ok {
				b.Fatal("Expected file-updated")
			}
		}
	}
}

// BenchmarkRequestReply measures a get round trip on each transport.
func BenchmarkRequestReply(b *testing.B) {
	for _, transport := range []string{"websocket", "tcp"} {
		b.Run(transport, func(b *testing.B) {
			tc := NewTestContext(b, GetConfiguration("memory"))
			defer tc.Cleanup()

			var c Client
			if transport == "websocket" {
				c = tc.DialWebSocket()
			} else {
				c = tc.DialTCP()
			}

			c.Send(protocol.CreateFile{Name: "bench.txt"})
			c.Recv()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				c.Send(protocol.GetFile{Name: "bench.txt"})
				if _, ok := c.Recv().(protocol.FileContent); !ok {
					b.Fatal("Expected file-content")
				}
			}
		})
	}
}
