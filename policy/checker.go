package policy

import (
	"fmt"
	"strings"
	"sync"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/ndn"
	sig "github.com/named-data/ndnd/std/security/signer"
)

// Verdict is the tri-state outcome of a checker.
type Verdict int

const (
	// VerdictFail rejects the packet. The checker has already invoked
	// the failure callback with its reason.
	VerdictFail Verdict = iota
	// VerdictPass accepts the packet without chain validation. The
	// checker has already invoked the success callback.
	VerdictPass
	// VerdictContinue defers to chain validation of the signing
	// certificate. No callback has been invoked.
	VerdictContinue
)

func (v Verdict) String() string {
	switch v {
	case VerdictFail:
		return "fail"
	case VerdictPass:
		return "pass"
	case VerdictContinue:
		return "continue"
	default:
		return "unknown"
	}
}

// CheckArgs is everything a checker may consult about a signed packet.
type CheckArgs struct {
	// Name is the signed name of the packet. For Interests this is the
	// name with the signature components stripped.
	Name enc.Name
	// Packet is the packet view handed to the crypto primitive.
	Packet ndn.Data
	// SigCovered is the signature covered wire of the packet.
	SigCovered enc.Wire
	// Signature is the signature under evaluation.
	Signature ndn.Signature
	// OnSuccess resolves the validation as accepted.
	OnSuccess func()
	// OnFailure resolves the validation as rejected.
	OnFailure func(error)
}

// Checker inspects a signed packet and classifies it.
type Checker interface {
	Check(args CheckArgs) Verdict
}

// CheckerFactory builds a checker from its configuration section.
// dir is the directory of the policy file, for resolving relative
// certificate paths.
type CheckerFactory func(section *Section, dir string) (Checker, error)

var checkerMutex sync.RWMutex
var checkerTypes = map[string]CheckerFactory{}

// RegisterChecker registers a checker factory under a type
// discriminator.
func RegisterChecker(typ string, factory CheckerFactory) {
	checkerMutex.Lock()
	defer checkerMutex.Unlock()
	checkerTypes[strings.ToLower(typ)] = factory
}

// CreateChecker builds a checker from a checker section. The section
// must begin with a type entry naming a registered factory.
func CreateChecker(section *Section, dir string) (Checker, error) {
	if len(section.Entries) == 0 || !section.Entries[0].KeyIs("type") {
		return nil, ConfigError{Reason: "expect <checker.type>"}
	}
	typ := section.Entries[0].Section.Val

	checkerMutex.RLock()
	factory := checkerTypes[strings.ToLower(typ)]
	checkerMutex.RUnlock()

	if factory == nil {
		return nil, ConfigError{Reason: fmt.Sprintf("unsupported checker type: %s", typ)}
	}
	return factory(section, dir)
}

func init() {
	RegisterChecker("customized", newCustomizedChecker)
	RegisterChecker("hierarchical", newHierarchicalChecker)
	RegisterChecker("fixed-signer", newFixedSignerChecker)
}

func parseSigType(s string) (ndn.SigType, error) {
	switch strings.ToLower(s) {
	case "sha256":
		return ndn.SignatureDigestSha256, nil
	case "rsa-sha256":
		return ndn.SignatureSha256WithRsa, nil
	case "ecdsa-sha256":
		return ndn.SignatureSha256WithEcdsa, nil
	case "hmac-sha256":
		return ndn.SignatureHmacWithSha256, nil
	case "ed25519":
		return ndn.SignatureEd25519, nil
	}
	return ndn.SignatureNone, ConfigError{Reason: fmt.Sprintf("unsupported signature type: %s", s)}
}

// customizedChecker requires a specific signature type and a key
// locator matching a fixed name under a relation. A match defers to
// chain validation of the locator's certificate.
type customizedChecker struct {
	sigType  ndn.SigType
	name     enc.Name
	relation NameRelation
}

func newCustomizedChecker(section *Section, _ string) (Checker, error) {
	w := walk(section, "checker")
	if _, err := w.expect("type"); err != nil {
		return nil, err
	}

	sigSec, err := w.expect("sig-type")
	if err != nil {
		return nil, err
	}
	sigType, err := parseSigType(sigSec.Val)
	if err != nil {
		return nil, err
	}

	locSec, err := w.expect("key-locator")
	if err != nil {
		return nil, err
	}
	if err := w.end(); err != nil {
		return nil, err
	}

	lw := walk(locSec, "key-locator")
	typSec, err := lw.expect("type")
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(typSec.Val, "name") {
		return nil, ConfigError{Context: "key-locator", Reason: fmt.Sprintf("unsupported type: %s", typSec.Val)}
	}

	nameSec, err := lw.expect("name")
	if err != nil {
		return nil, err
	}
	name, err := enc.NameFromStr(nameSec.Val)
	if err != nil {
		return nil, ConfigError{Context: "key-locator", Reason: fmt.Sprintf("invalid name: %s", nameSec.Val)}
	}

	relSec, err := lw.expect("relation")
	if err != nil {
		return nil, err
	}
	relation, err := parseRelation(relSec.Val)
	if err != nil {
		return nil, err
	}
	if err := lw.end(); err != nil {
		return nil, err
	}

	return &customizedChecker{sigType: sigType, name: name, relation: relation}, nil
}

func (c *customizedChecker) Check(args CheckArgs) Verdict {
	keyName, verdict := checkerKeyName(c.sigType, args)
	if verdict != VerdictContinue {
		return verdict
	}
	if !matchRelation(c.relation, c.name, keyName) {
		args.OnFailure(fmt.Errorf("key locator %s does not match %s (%s)", keyName, c.name, c.relation))
		return VerdictFail
	}
	return VerdictContinue
}

// hierarchicalChecker requires the signing key's identity to be a
// prefix of the signed name, so every namespace is signed from above.
type hierarchicalChecker struct {
	sigType ndn.SigType
}

func newHierarchicalChecker(section *Section, _ string) (Checker, error) {
	w := walk(section, "checker")
	if _, err := w.expect("type"); err != nil {
		return nil, err
	}
	sigSec, err := w.expect("sig-type")
	if err != nil {
		return nil, err
	}
	sigType, err := parseSigType(sigSec.Val)
	if err != nil {
		return nil, err
	}
	if err := w.end(); err != nil {
		return nil, err
	}
	return &hierarchicalChecker{sigType: sigType}, nil
}

func (c *hierarchicalChecker) Check(args CheckArgs) Verdict {
	keyName, verdict := checkerKeyName(c.sigType, args)
	if verdict != VerdictContinue {
		return verdict
	}
	identity := IdentityPrefix(keyName)
	if len(identity) == 0 || !identity.IsPrefix(args.Name) {
		args.OnFailure(fmt.Errorf("signer %s is not an ancestor of %s", keyName, args.Name))
		return VerdictFail
	}
	return VerdictContinue
}

// fixedSignerChecker accepts only packets signed directly by one of a
// fixed set of pre-trusted certificates. The verdict is always
// terminal: no chain validation runs for a matched rule.
type fixedSignerChecker struct {
	sigType ndn.SigType
	certs   []ndn.Data
}

func newFixedSignerChecker(section *Section, dir string) (Checker, error) {
	w := walk(section, "checker")
	if _, err := w.expect("type"); err != nil {
		return nil, err
	}
	sigSec, err := w.expect("sig-type")
	if err != nil {
		return nil, err
	}
	sigType, err := parseSigType(sigSec.Val)
	if err != nil {
		return nil, err
	}

	var certs []ndn.Data
	for w.peekIs("signer") {
		entry, _ := w.next()
		cert, err := loadCertSection(entry.Section, "signer", dir)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	if err := w.end(); err != nil {
		return nil, err
	}
	if len(certs) == 0 {
		return nil, ConfigError{Context: "checker", Reason: "no <signer> specified for fixed-signer"}
	}

	return &fixedSignerChecker{sigType: sigType, certs: certs}, nil
}

func (c *fixedSignerChecker) Check(args CheckArgs) Verdict {
	keyName, verdict := checkerKeyName(c.sigType, args)
	if verdict != VerdictContinue {
		return verdict
	}

	for _, cert := range c.certs {
		if !keyName.IsPrefix(cert.Name()) && !cert.Name().Equal(keyName) {
			continue
		}
		valid, err := sig.ValidateData(args.Packet, args.SigCovered, cert)
		if !valid || err != nil {
			args.OnFailure(fmt.Errorf("signature does not verify against fixed signer %s", cert.Name()))
			return VerdictFail
		}
		args.OnSuccess()
		return VerdictPass
	}

	args.OnFailure(fmt.Errorf("signer %s is not a trusted fixed signer", keyName))
	return VerdictFail
}

// checkerKeyName enforces the common preconditions of every checker:
// the packet carries a signature of the expected type with a named key
// locator. Returns the locator name and VerdictContinue, or VerdictFail
// after resolving the failure callback.
func checkerKeyName(sigType ndn.SigType, args CheckArgs) (enc.Name, Verdict) {
	if args.Signature == nil {
		args.OnFailure(fmt.Errorf("packet is not signed"))
		return nil, VerdictFail
	}
	if args.Signature.SigType() != sigType {
		args.OnFailure(fmt.Errorf("unexpected signature type: %s", args.Signature.SigType()))
		return nil, VerdictFail
	}
	keyName := args.Signature.KeyName()
	if len(keyName) == 0 {
		args.OnFailure(fmt.Errorf("signature carries no key locator name"))
		return nil, VerdictFail
	}
	return keyName, VerdictContinue
}
