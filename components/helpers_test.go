package components

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"
)

// zipArchive builds an in-memory zip with the given name -> content entries.
func zipArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// linearCSV returns n rows of y = 1.5*a - 2*b + 4 with a deterministic spread.
func linearCSV(n int) string {
	var sb strings.Builder
	sb.WriteString("a,b,quality\n")
	for i := 0; i < n; i++ {
		a := float64(i%17) / 4
		b := float64((i*7)%11) / 3
		fmt.Fprintf(&sb, "%g,%g,%g\n", a, b, 1.5*a-2*b+4)
	}
	return sb.String()
}

func writeFile(t *testing.T, fs billy.Filesystem, path, content string) {
	t.Helper()
	require.NoError(t, util.WriteFile(fs, path, []byte(content), 0o644))
}

func readFile(t *testing.T, fs billy.Filesystem, path string) string {
	t.Helper()
	data, err := util.ReadFile(fs, path)
	require.NoError(t, err)
	return string(data)
}
