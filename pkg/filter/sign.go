package filter

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/odvcencio/reforge/pkg/object"
)

// SignaturePrefix marks commit signatures written by SSHSigner.
const SignaturePrefix = "sshsig-v1"

// SSHSigner re-signs every rewritten commit with an SSH key. Signatures are
// "sshsig-v1:<format>:<base64 public key>:<base64 signature>" over the
// commit without its signature.
type SSHSigner struct {
	signer  ssh.Signer
	pubB64  string
	KeyPath string
}

// NewSSHSigner loads the private key at keyPath. An empty path selects the
// first of ~/.ssh/id_ed25519, id_ecdsa and id_rsa that exists.
func NewSSHSigner(keyPath string) (*SSHSigner, error) {
	resolved, err := resolveSigningKeyPath(keyPath)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read signing key %q: %w", resolved, err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse signing key %q: %w", resolved, err)
	}
	s := NewSSHSignerFromKey(signer)
	s.KeyPath = resolved
	return s, nil
}

// NewSSHSignerFromKey signs with an already loaded key.
func NewSSHSignerFromKey(signer ssh.Signer) *SSHSigner {
	return &SSHSigner{
		signer: signer,
		pubB64: base64.StdEncoding.EncodeToString(signer.PublicKey().Marshal()),
	}
}

func (s *SSHSigner) Name() string { return "ssh-signer" }

func (s *SSHSigner) RewriteSignature(_ context.Context, c *object.CommitObj) (string, error) {
	sig, err := s.signer.Sign(rand.Reader, object.SigningPayload(c))
	if err != nil {
		return "", fmt.Errorf("sign commit: %w", err)
	}
	return fmt.Sprintf("%s:%s:%s:%s", SignaturePrefix, sig.Format, s.pubB64, base64.StdEncoding.EncodeToString(sig.Blob)), nil
}

// ErrBadSignature is returned by VerifySignature for signatures that do not
// match their commit.
var ErrBadSignature = errors.New("bad commit signature")

// VerifySignature checks a signature written by SSHSigner and returns the
// signing public key.
func VerifySignature(c *object.CommitObj) (ssh.PublicKey, error) {
	parts := strings.Split(strings.TrimSpace(c.Signature), ":")
	if len(parts) != 4 || parts[0] != SignaturePrefix {
		return nil, fmt.Errorf("%w: unsupported format", ErrBadSignature)
	}
	rawPub, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", ErrBadSignature, err)
	}
	pub, err := ssh.ParsePublicKey(rawPub)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", ErrBadSignature, err)
	}
	blob, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrBadSignature, err)
	}
	if err := pub.Verify(object.SigningPayload(c), &ssh.Signature{Format: parts[1], Blob: blob}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return pub, nil
}

func resolveSigningKeyPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		return expandUserPath(path)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
		candidate := filepath.Join(home, ".ssh", name)
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no default SSH private key found in ~/.ssh (id_ed25519, id_ecdsa, id_rsa)")
}

func expandUserPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
}
