package console

import (
	"bytes"
	"io"
	"os"
	"testing"
	"time"

	"github.com/ericogr/fsr-logger/pkg/record"
)

func captureStdout(f func()) string {
	r, w, _ := os.Pipe()
	stdout := os.Stdout
	os.Stdout = w
	outC := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outC <- buf.String()
	}()
	f()
	_ = w.Close()
	os.Stdout = stdout
	return <-outC
}

func TestConsolePublish(t *testing.T) {
	c := NewConsole()
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	r := record.Reading{ID: 3, Raw: 123, Force: 1.234567, Timestamp: ts}
	out := captureStdout(func() { _ = c.Publish(r, 2.5) })
	want := "2025-09-19 14:41:54.000000 id=3 raw=123 force=1.234567000 max=2.500000000\n"
	if out != want {
		t.Fatalf("console output mismatch:\n got: %q\nwant: %q", out, want)
	}
}

func TestConsoleStatus(t *testing.T) {
	c := NewConsole()
	out := captureStdout(func() { _ = c.Status("Time obtained", "from local file") })
	want := "status: Time obtained | from local file\n"
	if out != want {
		t.Fatalf("console status mismatch:\n got: %q\nwant: %q", out, want)
	}
}
