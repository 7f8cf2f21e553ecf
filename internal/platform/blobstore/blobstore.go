// Package blobstore keeps uploaded documents on disk, addressed by the
// BLAKE2b-256 digest of their content.
package blobstore

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrNotFound   = errors.New("document not found")
	ErrInvalidRef = errors.New("invalid document ref")
	ErrTooLarge   = errors.New("document too large")
)

type Stored struct {
	Ref    string `json:"ref"`
	Digest string `json:"digest"`
	Size   int64  `json:"size"`
}

// Sealer encrypts content at rest. Digests always cover the plaintext.
type Sealer interface {
	Enabled() bool
	Seal(plain []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

type Store struct {
	Dir     string
	MaxSize int64
	Sealer  Sealer
}

func New(dir string, maxSize int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	return &Store{Dir: dir, MaxSize: maxSize}, nil
}

// Digest is the hex BLAKE2b-256 of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put writes r to disk. The returned ref is the content digest plus the
// file extension, so identical uploads share one file.
func (s *Store) Put(ctx context.Context, r io.Reader, fileName string) (Stored, error) {
	if s.sealed() {
		return s.putSealed(ctx, r, fileName)
	}
	hasher, err := blake2b.New256(nil)
	if err != nil {
		return Stored{}, err
	}
	tmp, err := os.CreateTemp(s.Dir, "upload-*")
	if err != nil {
		return Stored{}, err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	src := r
	if s.MaxSize > 0 {
		src = io.LimitReader(r, s.MaxSize+1)
	}
	size, err := io.Copy(io.MultiWriter(tmp, hasher), src)
	if err != nil {
		return Stored{}, err
	}
	if s.MaxSize > 0 && size > s.MaxSize {
		return Stored{}, ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}
	if err := tmp.Close(); err != nil {
		return Stored{}, err
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	ref := digest + strings.ToLower(filepath.Ext(fileName))
	if err := os.Rename(tmp.Name(), s.path(ref)); err != nil {
		return Stored{}, fmt.Errorf("store document: %w", err)
	}
	return Stored{Ref: ref, Digest: digest, Size: size}, nil
}

func (s *Store) putSealed(ctx context.Context, r io.Reader, fileName string) (Stored, error) {
	src := r
	if s.MaxSize > 0 {
		src = io.LimitReader(r, s.MaxSize+1)
	}
	plain, err := io.ReadAll(src)
	if err != nil {
		return Stored{}, err
	}
	if s.MaxSize > 0 && int64(len(plain)) > s.MaxSize {
		return Stored{}, ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}
	sealed, err := s.Sealer.Seal(plain)
	if err != nil {
		return Stored{}, fmt.Errorf("seal document: %w", err)
	}

	digest := Digest(plain)
	ref := digest + strings.ToLower(filepath.Ext(fileName))
	tmp, err := os.CreateTemp(s.Dir, "upload-*")
	if err != nil {
		return Stored{}, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return Stored{}, err
	}
	if err := tmp.Close(); err != nil {
		return Stored{}, err
	}
	if err := os.Rename(tmp.Name(), s.path(ref)); err != nil {
		return Stored{}, fmt.Errorf("store document: %w", err)
	}
	return Stored{Ref: ref, Digest: digest, Size: int64(len(plain))}, nil
}

func (s *Store) sealed() bool {
	return s.Sealer != nil && s.Sealer.Enabled()
}

func (s *Store) Exists(_ context.Context, ref string) (bool, error) {
	if !validRef(ref) {
		return false, nil
	}
	_, err := os.Stat(s.path(ref))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Hash recomputes the digest of the stored content. Sealed content that no
// longer opens hashes as its raw bytes, so it never matches a recorded digest.
func (s *Store) Hash(_ context.Context, ref string) (string, error) {
	if !validRef(ref) {
		return "", ErrInvalidRef
	}
	if s.sealed() {
		raw, err := os.ReadFile(s.path(ref))
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		if err != nil {
			return "", err
		}
		plain, err := s.Sealer.Open(raw)
		if err != nil {
			return Digest(raw), nil
		}
		return Digest(plain), nil
	}
	f, err := os.Open(s.path(ref))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (s *Store) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	if !validRef(ref) {
		return nil, ErrInvalidRef
	}
	if s.sealed() {
		raw, err := os.ReadFile(s.path(ref))
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		plain, err := s.Sealer.Open(raw)
		if err != nil {
			return nil, fmt.Errorf("open document %s: %w", ref, err)
		}
		return io.NopCloser(bytes.NewReader(plain)), nil
	}
	f, err := os.Open(s.path(ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *Store) path(ref string) string {
	return filepath.Join(s.Dir, ref)
}

func validRef(ref string) bool {
	return ref != "" && !strings.ContainsAny(ref, `/\`) && !strings.HasPrefix(ref, ".")
}
