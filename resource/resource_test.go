package resource

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/viant/afs"
	_ "github.com/viant/afs/mem"

	"github.com/stretchr/testify/assert"
)

func TestLocator_ListDirectory(t *testing.T) {
	ctx := context.Background()
	fs := afs.New()
	assert.NoError(t, fs.Upload(ctx, "mem://localhost/pkg/a.xml", os.FileMode(0644), strings.NewReader("<a/>")))
	assert.NoError(t, fs.Upload(ctx, "mem://localhost/pkg/b.xml", os.FileMode(0644), strings.NewReader("<b/>")))

	l := New(fs)
	names, err := l.List(ctx, "mem://localhost/pkg")
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.xml", "b.xml"}, names)
}

func TestLocator_ListArchive(t *testing.T) {
	ctx := context.Background()
	fs := afs.New()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("mappers/one.xml")
	assert.NoError(t, err)
	_, _ = w.Write([]byte("<mapper/>"))
	w2, err := zw.Create("mappers/two.xml")
	assert.NoError(t, err)
	_, _ = w2.Write([]byte("<mapper/>"))
	assert.NoError(t, zw.Close())

	assert.NoError(t, fs.Upload(ctx, "mem://localhost/bundle.zip", os.FileMode(0644), bytes.NewReader(buf.Bytes())))

	l := New(fs)
	names, err := l.List(ctx, "mem://localhost/bundle.zip!/mappers")
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"one.xml", "two.xml"}, names)

	content, err := l.Read(ctx, "mem://localhost/bundle.zip!/mappers/one.xml")
	assert.NoError(t, err)
	assert.Equal(t, "<mapper/>", string(content))
}
