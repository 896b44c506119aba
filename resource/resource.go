// Package resource implements resource location: enumerating the child
// resources of a package-like location with two listing strategies: zip
// archive listing and directory listing over any afs-backed location. There
// is no separate classpath-style strategy.
//
// Built on github.com/viant/afs (afs/mem, afs/url) as its storage
// abstraction, layering archive-detection and directory-listing strategies
// on top of afs.Service, falling back to stdlib archive/zip only for the
// magic-byte/entry-iteration mechanics that afs.Service does not itself
// expose.
package resource

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/url"

	"github.com/viant/sqlmapper/mapererrors"
)

// zipMagic is the four-byte signature used to key archive detection off,
// rather than trusting a file extension.
var zipMagic = []byte{0x50, 0x4B, 0x03, 0x04}

// Locator enumerates resources reachable from a base location, using
// whichever of the two strategies (archive or directory) applies.
type Locator struct {
	fs afs.Service
}

// New builds a Locator over an afs.Service. Pass afs.New() for the real
// filesystem/cloud backends, or a mem-backed service in tests.
func New(fs afs.Service) *Locator {
	return &Locator{fs: fs}
}

// List enumerates the resource names reachable under basePkg, which may
// resolve to a plain directory, or to a location inside an archive.
func (l *Locator) List(ctx context.Context, basePkg string) ([]string, error) {
	if archivePath, inner, ok := splitArchivePath(basePkg); ok {
		return l.listArchive(ctx, archivePath, inner)
	}

	isArchive, err := l.looksLikeArchive(ctx, basePkg)
	if err != nil {
		return nil, err
	}
	if isArchive {
		return l.listArchive(ctx, basePkg, "")
	}
	return l.listDirectory(ctx, basePkg)
}

// looksLikeArchive reads the first four bytes of basePkg and compares them
// against the zip magic prefix. Directories have nothing to sniff and are
// treated as non-archives.
func (l *Locator) looksLikeArchive(ctx context.Context, basePkg string) (bool, error) {
	object, err := l.fs.Object(ctx, basePkg)
	if err != nil {
		return false, nil
	}
	if object.IsDir() {
		return false, nil
	}
	data, err := l.fs.DownloadWithURL(ctx, basePkg)
	if err != nil {
		return false, fmt.Errorf("%w: read %s: %v", mapererrors.ErrDataStore, basePkg, err)
	}
	if len(data) < 4 {
		return false, nil
	}
	return bytes.Equal(data[:4], zipMagic), nil
}

// listArchive downloads archivePath, opens it as a zip, and returns entry
// names under inner (empty inner means the whole archive).
func (l *Locator) listArchive(ctx context.Context, archivePath, inner string) ([]string, error) {
	data, err := l.fs.DownloadWithURL(ctx, archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: download archive %s: %v", mapererrors.ErrDataStore, archivePath, err)
	}
	if len(data) < 4 || !bytes.Equal(data[:4], zipMagic) {
		return nil, fmt.Errorf("%w: %s is not a zip archive", mapererrors.ErrConfig, archivePath)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open archive %s: %v", mapererrors.ErrConfig, archivePath, err)
	}
	prefix := strings.Trim(inner, "/")
	var names []string
	for _, f := range zr.File {
		name := strings.Trim(f.Name, "/")
		if prefix != "" {
			if !strings.HasPrefix(name, prefix+"/") {
				continue
			}
			name = strings.TrimPrefix(name, prefix+"/")
		}
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// listDirectory lists a plain directory location, verifying each candidate
// by attempting a further object lookup. An inconsistent listing aborts
// the strategy rather than silently returning a partial result.
func (l *Locator) listDirectory(ctx context.Context, basePkg string) ([]string, error) {
	objects, err := l.fs.List(ctx, basePkg)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", mapererrors.ErrDataStore, basePkg, err)
	}
	var names []string
	for _, obj := range objects {
		name := obj.Name()
		if name == "" || name == "." {
			continue
		}
		candidate := url.Join(basePkg, name)
		if _, err := l.fs.Object(ctx, candidate); err != nil {
			return nil, fmt.Errorf("%w: inconsistent directory listing for %s: candidate %s unresolvable: %v", mapererrors.ErrDataStore, basePkg, candidate, err)
		}
		names = append(names, name)
	}
	return names, nil
}

// Read downloads the content addressed by location, resolving into an
// archive entry first if location points inside one.
func (l *Locator) Read(ctx context.Context, location string) ([]byte, error) {
	if archivePath, inner, ok := splitArchivePath(location); ok && inner != "" {
		data, err := l.fs.DownloadWithURL(ctx, archivePath)
		if err != nil {
			return nil, fmt.Errorf("%w: download archive %s: %v", mapererrors.ErrDataStore, archivePath, err)
		}
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("%w: open archive %s: %v", mapererrors.ErrConfig, archivePath, err)
		}
		target := strings.TrimPrefix(inner, "/")
		for _, f := range zr.File {
			if strings.Trim(f.Name, "/") != target {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("%w: open entry %s: %v", mapererrors.ErrDataStore, target, err)
			}
			defer rc.Close()
			var buf bytes.Buffer
			if _, err := buf.ReadFrom(rc); err != nil {
				return nil, fmt.Errorf("%w: read entry %s: %v", mapererrors.ErrDataStore, target, err)
			}
			return buf.Bytes(), nil
		}
		return nil, fmt.Errorf("%w: entry %s not found in %s", mapererrors.ErrConfig, target, archivePath)
	}
	data, err := l.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("%w: download %s: %v", mapererrors.ErrDataStore, location, err)
	}
	return data, nil
}

// splitArchivePath recognises the "archive.zip!/inner/path" convention used
// to address an entry nested inside an archive.
func splitArchivePath(location string) (archivePath, inner string, ok bool) {
	idx := strings.Index(location, "!/")
	if idx < 0 {
		return "", "", false
	}
	return location[:idx], location[idx+2:], true
}
