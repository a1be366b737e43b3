package repo

import (
	"archive/tar"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nicolagi/vesta/internal/block"
	"github.com/nicolagi/vesta/internal/storage"
)

// ShipTo packages the repository's source tree as a tar archive and pushes
// it, content-addressed, to store -- the evaluator's -shipto flag. The
// returned key is the repository ref to hand to a ShipFrom call
// elsewhere.
func (r *Repo) ShipTo(store storage.Store) (string, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	err := filepath.Walk(r.dir, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(r.dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if err := tw.WriteHeader(&tar.Header{Name: rel, Size: int64(len(data)), Mode: 0644}); err != nil {
			return err
		}
		_, err = tw.Write(data)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("repo.ShipTo: %w", err)
	}
	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("repo.ShipTo: %w", err)
	}
	ref := block.RefOf(buf.Bytes())
	if err := store.Put(ref.Key(), storage.Value(buf.Bytes())); err != nil {
		return "", fmt.Errorf("repo.ShipTo: %w", err)
	}
	return ref.String(), nil
}

// ShipFrom is the inverse of ShipTo: it fetches the archive named by ref
// from store and extracts it into dir, creating dir if necessary, then opens
// it as a Repo (the evaluator's -shipfrom flag).
func ShipFrom(store storage.Store, ref, dir, specialName string) (*Repo, error) {
	parsed, err := parseRepositoryRef(ref)
	if err != nil {
		return nil, fmt.Errorf("repo.ShipFrom: %w", err)
	}
	data, err := store.Get(parsed.Key())
	if err != nil {
		return nil, fmt.Errorf("repo.ShipFrom: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("repo.ShipFrom: %w", err)
	}
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("repo.ShipFrom: %w", err)
		}
		dst := filepath.Join(dir, hdr.Name)
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return nil, fmt.Errorf("repo.ShipFrom: %w", err)
		}
		f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, fmt.Errorf("repo.ShipFrom: %w", err)
		}
		if _, err := io.Copy(f, tr); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("repo.ShipFrom: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("repo.ShipFrom: %w", err)
		}
	}
	return New(dir, specialName)
}

func parseRepositoryRef(s string) (block.Ref, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("parseRepositoryRef: %w", err)
	}
	return block.NewRef(b)
}
