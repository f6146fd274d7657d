package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelWriter_SplitsAndDrops(t *testing.T) {
	ch := make(chan string, 2)
	w := NewChannelWriter(ch)

	n, err := w.Write([]byte("first\nsecond\nthird\n"))
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	assert.Equal(t, "first", <-ch)
	assert.Equal(t, "second", <-ch)
	select {
	case line := <-ch:
		t.Fatalf("expected third line to be dropped, got %q", line)
	default:
	}
}

func TestNew_WritesFileAndUI(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "app.log")
	l := New(Options{File: file, MaxSizeMB: 1})
	defer l.Close()

	l.Logger.Printf("Adapter: using %s", "Simulator")

	select {
	case line := <-l.UILines:
		assert.Contains(t, line, "Adapter: using Simulator")
	default:
		t.Fatal("no UI line")
	}

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Adapter: using Simulator")
}

func TestNew_UIOnly(t *testing.T) {
	l := New(Options{})
	l.Logger.Println("hello")
	assert.Contains(t, <-l.UILines, "hello")
	assert.NoError(t, l.Close())
}
