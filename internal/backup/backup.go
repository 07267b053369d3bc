// Package backup archives and restores a sandbox's agent-state directory.
// It shells out to the sandbox's exec RPC to tar the directory, streams the
// archive through the object store, and reverses the process to restore an
// idle sandbox from a prior session.
package backup

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/opencode-ai/sandbox-gateway/internal/errs"
	"github.com/opencode-ai/sandbox-gateway/internal/objectstore"
	"github.com/opencode-ai/sandbox-gateway/internal/sandbox"
	"github.com/opencode-ai/sandbox-gateway/internal/storekeys"
)

// execer is the subset of *sandbox.Client that Take/Restore need.
type execer interface {
	Exec(ctx context.Context, workDir, cmd string) (*sandbox.ExecResult, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, body []byte) error
}

// chunkThreshold is the chunk size EncodeChunked splits a payload into.
// Take and Restore do not use it; they move the whole archive in one file
// RPC call.
const chunkThreshold = 100 * 1024

const archiveRemotePath = "/tmp/sandbox-gateway-backup.tar.gz"

// Take tars+gzips workDir/stateDir inside the sandbox, pulls the archive
// out via the file RPC, and writes it to the object store under the
// session's backup key.
func Take(ctx context.Context, sb execer, store objectstore.Store, sessionID, workDir, stateDir string) error {
	cmd := fmt.Sprintf("tar czf %s -C %s %s", archiveRemotePath, workDir, stateDir)
	if _, err := sb.Exec(ctx, workDir, cmd); err != nil {
		return errs.SandboxAdapter("tar state dir failed", err)
	}

	archive, err := sb.ReadFile(ctx, archiveRemotePath)
	if err != nil {
		return errs.SandboxAdapter("read backup archive failed", err)
	}

	if _, err := store.Put(ctx, storekeys.BackupKey(sessionID), archive, objectstore.PutOptions{}); err != nil {
		return errs.StorageWrite("write backup archive failed", err)
	}
	return nil
}

// Restore fetches the session's archived state from the object store and
// unpacks it into workDir inside the sandbox.
func Restore(ctx context.Context, sb execer, store objectstore.Store, sessionID, workDir string) error {
	obj, err := store.Get(ctx, storekeys.BackupKey(sessionID))
	if err != nil {
		if err == objectstore.ErrNotFound {
			return nil
		}
		return errs.StorageRead("read backup archive failed", err)
	}

	if err := sb.WriteFile(ctx, archiveRemotePath, obj.Body); err != nil {
		return errs.SandboxAdapter("write backup archive failed", err)
	}

	cmd := fmt.Sprintf("mkdir -p %s && tar xzf %s -C %s", workDir, archiveRemotePath, workDir)
	if _, err := sb.Exec(ctx, workDir, cmd); err != nil {
		return errs.SandboxAdapter("untar state dir failed", err)
	}
	return nil
}

// BuildArchive packs a set of in-memory files into a gzip-compressed tar,
// used by tests and by callers that assemble state outside a sandbox.
func BuildArchive(files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for name, body := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body))}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write(body); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExtractArchive is the inverse of BuildArchive.
func ExtractArchive(archive []byte) (map[string][]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	files := make(map[string][]byte)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		files[hdr.Name] = body
	}
	return files, nil
}

// EncodeChunked base64-encodes body for transport through RPC surfaces
// that only carry text payloads, splitting it into chunkThreshold-sized
// pieces so no single chunk risks truncation by an intermediary.
func EncodeChunked(body []byte) []string {
	encoded := base64.StdEncoding.EncodeToString(body)
	if len(encoded) <= chunkThreshold {
		return []string{encoded}
	}
	var chunks []string
	for i := 0; i < len(encoded); i += chunkThreshold {
		end := i + chunkThreshold
		if end > len(encoded) {
			end = len(encoded)
		}
		chunks = append(chunks, encoded[i:end])
	}
	return chunks
}

// DecodeChunked reverses EncodeChunked.
func DecodeChunked(chunks []string) ([]byte, error) {
	var b bytes.Buffer
	for _, c := range chunks {
		b.WriteString(c)
	}
	return base64.StdEncoding.DecodeString(b.String())
}
