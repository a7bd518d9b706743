package policy

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/ndn"
	spec "github.com/named-data/ndnd/std/ndn/spec_2022"
	sec "github.com/named-data/ndnd/std/security"
)

// AnchorStore maps identity prefixes to pre-trusted certificates.
// It is populated at load time and read-only afterwards, so any number
// of validations may consult it concurrently.
type AnchorStore struct {
	list []AnchorEntry
	byId map[string]int
}

// AnchorEntry is one trust anchor with its derived identity prefix.
type AnchorEntry struct {
	Prefix enc.Name
	Cert   ndn.Data
}

func NewAnchorStore() *AnchorStore {
	return &AnchorStore{byId: map[string]int{}}
}

// Insert registers a certificate under its subject identity prefix.
// Re-inserting the same identity replaces the previous certificate.
func (s *AnchorStore) Insert(cert ndn.Data) error {
	if len(cert.Name()) == 0 {
		return ConfigError{Context: "trust-anchor", Reason: "certificate has an empty name"}
	}
	prefix := IdentityPrefix(cert.Name())
	if len(prefix) == 0 {
		return ConfigError{Context: "trust-anchor", Reason: fmt.Sprintf("cannot derive identity from %s", cert.Name())}
	}

	key := prefix.TlvStr()
	if i, ok := s.byId[key]; ok {
		s.list[i].Cert = cert
		return nil
	}
	s.byId[key] = len(s.list)
	s.list = append(s.list, AnchorEntry{Prefix: prefix, Cert: cert})
	return nil
}

// Find returns the anchor certificate for the key locator's own
// identity prefix, or nil. A locator merely under an anchor's
// namespace is not a match: its certificate still has to be fetched
// and chain-validated.
func (s *AnchorStore) Find(keyLocator enc.Name) ndn.Data {
	if i, ok := s.byId[IdentityPrefix(keyLocator).TlvStr()]; ok {
		return s.list[i].Cert
	}
	return nil
}

// Lookup returns the certificate stored for the exact identity prefix,
// or nil.
func (s *AnchorStore) Lookup(prefix enc.Name) ndn.Data {
	if i, ok := s.byId[prefix.TlvStr()]; ok {
		return s.list[i].Cert
	}
	return nil
}

// Len returns the number of anchors.
func (s *AnchorStore) Len() int {
	return len(s.list)
}

// Entries returns the anchors in load order.
func (s *AnchorStore) Entries() []AnchorEntry {
	return s.list
}

// IdentityPrefix returns the subject identity of a certificate or key
// name: the prefix before the KEY component. Names without a KEY
// component are treated as already-versioned identity names and
// returned with the final component stripped.
func IdentityPrefix(name enc.Name) enc.Name {
	for i, comp := range name {
		if comp.Typ == enc.TypeGenericNameComponent && string(comp.Val) == "KEY" {
			return name.Prefix(i)
		}
	}
	return name.Prefix(-1)
}

// LoadCertFile reads a certificate from a TLV or PEM encoded file.
func LoadCertFile(path string) (ndn.Data, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, ConfigError{Reason: fmt.Sprintf("cannot read certificate file: %s", path)}
	}

	_, certs, err := sec.DecodeFile(content)
	if err != nil || len(certs) == 0 {
		return nil, ConfigError{Reason: fmt.Sprintf("no certificate found in file: %s", path)}
	}
	return readCert(certs[0], path)
}

// LoadCertBase64 decodes an inline base64 certificate.
func LoadCertBase64(b64 string) (ndn.Data, error) {
	clean := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, b64)

	wire, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, ConfigError{Reason: "cannot decode certificate from base64-string"}
	}
	return readCert(wire, "base64-string")
}

func readCert(wire []byte, origin string) (ndn.Data, error) {
	cert, _, err := spec.Spec{}.ReadData(enc.NewBufferView(wire))
	if err != nil {
		return nil, ConfigError{Reason: fmt.Sprintf("cannot parse certificate from %s", origin)}
	}
	return cert, nil
}

// loadCertSection loads the certificate of a trust-anchor or signer
// section: type file with a file-name relative to dir, or type base64
// with an inline base64-string.
func loadCertSection(section *Section, ctx string, dir string) (ndn.Data, error) {
	w := walk(section, ctx)
	typSec, err := w.expect("type")
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(typSec.Val) {
	case "file":
		fileSec, err := w.expect("file-name")
		if err != nil {
			return nil, err
		}
		if err := w.end(); err != nil {
			return nil, err
		}
		path := fileSec.Val
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		return LoadCertFile(path)

	case "base64":
		b64Sec, err := w.expect("base64-string")
		if err != nil {
			return nil, err
		}
		if err := w.end(); err != nil {
			return nil, err
		}
		return LoadCertBase64(b64Sec.Val)

	default:
		return nil, ConfigError{Context: ctx, Reason: fmt.Sprintf("unsupported type: %s", typSec.Val)}
	}
}
