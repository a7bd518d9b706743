package validator_test

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/ndn"
	spec "github.com/named-data/ndnd/std/ndn/spec_2022"
	sec "github.com/named-data/ndnd/std/security"
	"github.com/named-data/ndnd/std/security/signer"
	tu "github.com/named-data/ndnd/std/utils/testutils"
	"github.com/stretchr/testify/require"

	"github.com/named-data/ndn-validator/validator"
)

func sname(n string) enc.Name {
	return tu.NoErr(enc.NameFromStr(n))
}

// testbed simulates the network side of certificate resolution: a map
// of certificate wires keyed by name, with a counter for fetches.
type testbed struct {
	t          *testing.T
	network    map[string]enc.Wire
	fetchCount int
}

func newTestbed(t *testing.T) *testbed {
	return &testbed{t: t, network: map[string]enc.Wire{}}
}

// fetch resolves certificates synchronously from the network map, so
// every validation in these tests completes before the call returns.
func (tb *testbed) fetch(name enc.Name, _ *ndn.InterestConfig, callback ndn.ExpressCallbackFunc) {
	tb.fetchCount++

	var wire enc.Wire
	for netName, netWire := range tb.network {
		if strings.HasPrefix(netName, name.String()) {
			wire = netWire
			break
		}
	}
	if wire == nil {
		callback(ndn.ExpressCallbackArgs{Result: ndn.InterestResultNack})
		return
	}

	data, sigCov, err := spec.Spec{}.ReadData(enc.NewWireView(wire))
	callback(ndn.ExpressCallbackArgs{
		Result:     ndn.InterestResultData,
		Data:       data,
		RawData:    wire,
		SigCovered: sigCov,
		Error:      err,
	})
}

// keygen creates a key for an identity with a certificate signed by
// issuer, or self-signed when issuer is nil, and publishes the
// certificate on the test network.
func (tb *testbed) keygen(identity string, issuer ndn.Signer) (ndn.Signer, ndn.Data, enc.Wire) {
	key, err := signer.KeygenEd25519(sec.MakeKeyName(sname(identity)))
	require.NoError(tb.t, err)

	var wire enc.Wire
	if issuer == nil {
		wire, err = sec.SelfSign(sec.SignCertArgs{
			Signer:    key,
			NotBefore: time.Now(),
			NotAfter:  time.Now().Add(time.Hour),
		})
	} else {
		secret := tu.NoErr(signer.MarshalSecret(key))
		var csr ndn.Data
		csr, _, err = spec.Spec{}.ReadData(enc.NewWireView(secret))
		require.NoError(tb.t, err)
		wire, err = sec.SignCert(sec.SignCertArgs{
			Signer:    issuer,
			Data:      csr,
			IssuerId:  enc.NewGenericComponent("ndn"),
			NotBefore: time.Now(),
			NotAfter:  time.Now().Add(time.Hour),
		})
	}
	require.NoError(tb.t, err)

	cert, _, err := spec.Spec{}.ReadData(enc.NewWireView(wire))
	require.NoError(tb.t, err)
	tb.network[cert.Name().String()] = wire
	return key, cert, wire
}

// chainPolicy accepts everything under /test signed by a key under
// /test, deferring to chain validation, anchored at the given
// certificate.
func chainPolicy(anchor enc.Wire) []byte {
	return []byte(fmt.Sprintf(`
rule:
  id: all
  for: data
  filter:
    type: name
    name: /test
    relation: is-prefix-of
  checker:
    type: customized
    sig-type: ed25519
    key-locator:
      type: name
      name: /test
      relation: is-prefix-of
rule:
  id: commands
  for: interest
  checker:
    type: customized
    sig-type: ed25519
    key-locator:
      type: name
      name: /test
      relation: is-prefix-of
trust-anchor:
  type: base64
  base64-string: %s
`, base64.StdEncoding.EncodeToString(anchor.Join())))
}

func newValidator(t *testing.T, tb *testbed, stepLimit int, policySrc []byte) *validator.Validator {
	v, err := validator.New(validator.Options{
		Fetch:     tb.fetch,
		StepLimit: stepLimit,
	})
	require.NoError(t, err)
	require.NoError(t, v.LoadBytes(policySrc, ""))
	return v
}

// validateData runs one synchronous validation and returns the result.
func validateData(t *testing.T, v *validator.Validator, name string, key ndn.Signer) (bool, error) {
	w, err := spec.Spec{}.MakeData(sname(name), &ndn.DataConfig{}, enc.Wire{[]byte{1, 2, 3}}, key)
	require.NoError(t, err)
	data, sigCov, err := spec.Spec{}.ReadData(enc.NewWireView(w.Wire))
	require.NoError(t, err)

	var valid bool
	var failure error
	resolved := 0
	v.ValidateData(data, sigCov,
		func() { valid = true; resolved++ },
		func(err error) { failure = err; resolved++ })

	require.Equal(t, 1, resolved, "validation must resolve exactly once")
	return valid, failure
}

func TestNewValidator(t *testing.T) {
	tu.SetT(t)

	_, err := validator.New(validator.Options{StepLimit: 5})
	require.Error(t, err)

	tb := newTestbed(t)
	_, err = validator.New(validator.Options{Fetch: tb.fetch, StepLimit: -1})
	require.Error(t, err)

	v, err := validator.New(validator.Options{Fetch: tb.fetch, StepLimit: 5})
	require.NoError(t, err)

	// No policy loaded: nothing validates.
	valid, failure := validateData(t, v, "/test/data", tu.NoErr(signer.KeygenEd25519(sec.MakeKeyName(sname("/test")))))
	require.False(t, valid)
	require.ErrorIs(t, failure, validator.ErrNoRuleMatched)
}

func TestValidateChain(t *testing.T) {
	tu.SetT(t)
	tb := newTestbed(t)

	rootKey, _, rootCert := tb.keygen("/test", nil)
	aliceKey, _, _ := tb.keygen("/test/alice", rootKey)

	v := newValidator(t, tb, 3, chainPolicy(rootCert))

	// First validation fetches alice's certificate.
	valid, failure := validateData(t, v, "/test/alice/data1", aliceKey)
	require.True(t, valid, "failure: %v", failure)
	require.Equal(t, 1, tb.fetchCount)

	// Second validation hits the certificate cache.
	valid, _ = validateData(t, v, "/test/alice/data2", aliceKey)
	require.True(t, valid)
	require.Equal(t, 1, tb.fetchCount)
}

func TestValidateAnchorSigned(t *testing.T) {
	tu.SetT(t)
	tb := newTestbed(t)

	rootKey, _, rootCert := tb.keygen("/test", nil)
	v := newValidator(t, tb, 3, chainPolicy(rootCert))

	// Signed directly by the trust anchor: terminal, nothing fetched.
	valid, failure := validateData(t, v, "/test/data", rootKey)
	require.True(t, valid, "failure: %v", failure)
	require.Equal(t, 0, tb.fetchCount)
}

func TestValidateBadSignature(t *testing.T) {
	tu.SetT(t)
	tb := newTestbed(t)

	rootKey, _, rootCert := tb.keygen("/test", nil)
	aliceKey, _, _ := tb.keygen("/test/alice", rootKey)
	v := newValidator(t, tb, 3, chainPolicy(rootCert))

	// Same key name as alice, different key material.
	impostor, err := signer.KeygenEd25519(aliceKey.KeyName())
	require.NoError(t, err)

	valid, failure := validateData(t, v, "/test/alice/data1", impostor)
	require.False(t, valid)
	require.ErrorIs(t, failure, validator.ErrInvalidSignature)
}

func TestValidateNoRuleMatched(t *testing.T) {
	tu.SetT(t)
	tb := newTestbed(t)

	rootKey, _, rootCert := tb.keygen("/test", nil)
	v := newValidator(t, tb, 3, chainPolicy(rootCert))

	valid, failure := validateData(t, v, "/outside/data", rootKey)
	require.False(t, valid)
	require.ErrorIs(t, failure, validator.ErrNoRuleMatched)
}

func TestValidateFetchFailure(t *testing.T) {
	tu.SetT(t)
	tb := newTestbed(t)

	_, _, rootCert := tb.keygen("/test", nil)
	v := newValidator(t, tb, 3, chainPolicy(rootCert))

	// No certificate for this key anywhere.
	ghostKey, err := signer.KeygenEd25519(sec.MakeKeyName(sname("/test/ghost")))
	require.NoError(t, err)

	valid, failure := validateData(t, v, "/test/ghost/data", ghostKey)
	require.False(t, valid)
	require.ErrorIs(t, failure, validator.ErrUntrustedCert)
	require.ErrorIs(t, failure, validator.ErrFetchFailed)
	require.Equal(t, 1, tb.fetchCount)
}

func TestValidateExpiredCert(t *testing.T) {
	tu.SetT(t)
	tb := newTestbed(t)

	rootKey, _, rootCert := tb.keygen("/test", nil)

	// Certificate whose validity period already ended.
	staleKey, err := signer.KeygenEd25519(sec.MakeKeyName(sname("/test/stale")))
	require.NoError(t, err)
	secret := tu.NoErr(signer.MarshalSecret(staleKey))
	csr, _, err := spec.Spec{}.ReadData(enc.NewWireView(secret))
	require.NoError(t, err)
	staleWire, err := sec.SignCert(sec.SignCertArgs{
		Signer:    rootKey,
		Data:      csr,
		IssuerId:  enc.NewGenericComponent("ndn"),
		NotBefore: time.Now().Add(-2 * time.Hour),
		NotAfter:  time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	staleCert, _, err := spec.Spec{}.ReadData(enc.NewWireView(staleWire))
	require.NoError(t, err)
	tb.network[staleCert.Name().String()] = staleWire

	v := newValidator(t, tb, 3, chainPolicy(rootCert))

	valid, failure := validateData(t, v, "/test/stale/data", staleKey)
	require.False(t, valid)
	require.ErrorIs(t, failure, validator.ErrCertExpired)
}

func TestStepLimitZero(t *testing.T) {
	tu.SetT(t)
	tb := newTestbed(t)

	rootKey, _, rootCert := tb.keygen("/test", nil)
	v := newValidator(t, tb, 0, chainPolicy(rootCert))

	// A step limit of zero rejects everything, even anchor-signed data.
	valid, failure := validateData(t, v, "/test/data", rootKey)
	require.False(t, valid)
	require.ErrorIs(t, failure, validator.ErrMaxSteps)
	require.Equal(t, 0, tb.fetchCount)
}

func TestStepLimitChain(t *testing.T) {
	tu.SetT(t)
	tb := newTestbed(t)

	rootKey, _, rootCert := tb.keygen("/test", nil)
	cKey, _, _ := tb.keygen("/test/c", rootKey)
	bKey, _, _ := tb.keygen("/test/b", cKey)
	aKey, _, _ := tb.keygen("/test/a", bKey)

	// Two intermediates plus the anchor fit within three steps.
	v := newValidator(t, tb, 3, chainPolicy(rootCert))
	valid, failure := validateData(t, v, "/test/b/data", bKey)
	require.True(t, valid, "failure: %v", failure)

	// Three intermediates exceed them. A fresh validator keeps its
	// certificate cache cold, so the whole chain has to walk and the
	// depth bound is what decides.
	v = newValidator(t, tb, 3, chainPolicy(rootCert))
	valid, failure = validateData(t, v, "/test/a/data", aKey)
	require.False(t, valid)
	require.ErrorIs(t, failure, validator.ErrMaxSteps)
	require.ErrorIs(t, failure, validator.ErrUntrustedCert)

	// One more step accepts the longer chain.
	v = newValidator(t, tb, 4, chainPolicy(rootCert))
	valid, failure = validateData(t, v, "/test/a/data", aKey)
	require.True(t, valid, "failure: %v", failure)
}

func TestFirstMatchWins(t *testing.T) {
	tu.SetT(t)
	tb := newTestbed(t)

	rootKey, _, rootCert := tb.keygen("/test", nil)

	policySrc := []byte(fmt.Sprintf(`
rule:
  id: block-commands
  for: data
  filter:
    type: name
    name: /test/cmd
    relation: is-prefix-of
  checker:
    type: customized
    sig-type: ed25519
    key-locator:
      type: name
      name: /nowhere
      relation: is-prefix-of
rule:
  id: allow-rest
  for: data
  checker:
    type: customized
    sig-type: ed25519
    key-locator:
      type: name
      name: /test
      relation: is-prefix-of
trust-anchor:
  type: base64
  base64-string: %s
`, base64.StdEncoding.EncodeToString(rootCert.Join())))

	v := newValidator(t, tb, 3, policySrc)

	// /test/cmd hits the blocking rule first; the permissive rule
	// behind it never runs.
	valid, failure := validateData(t, v, "/test/cmd/reboot", rootKey)
	require.False(t, valid)
	require.Error(t, failure)

	valid, failure = validateData(t, v, "/test/data", rootKey)
	require.True(t, valid, "failure: %v", failure)
}

func TestPolicyReload(t *testing.T) {
	tu.SetT(t)
	tb := newTestbed(t)

	rootKey, _, rootCert := tb.keygen("/test", nil)
	v := newValidator(t, tb, 3, chainPolicy(rootCert))

	valid, _ := validateData(t, v, "/test/data", rootKey)
	require.True(t, valid)

	// Swap in a policy that covers a different namespace.
	otherKey, _, otherCert := tb.keygen("/other", nil)
	require.NoError(t, v.LoadBytes([]byte(fmt.Sprintf(`
rule:
  id: other
  for: data
  filter:
    type: name
    name: /other
    relation: is-prefix-of
  checker:
    type: customized
    sig-type: ed25519
    key-locator:
      type: name
      name: /other
      relation: is-prefix-of
trust-anchor:
  type: base64
  base64-string: %s
`, base64.StdEncoding.EncodeToString(otherCert.Join()))), ""))

	valid, failure := validateData(t, v, "/test/data", rootKey)
	require.False(t, valid)
	require.ErrorIs(t, failure, validator.ErrNoRuleMatched)

	valid, failure = validateData(t, v, "/other/data", otherKey)
	require.True(t, valid, "failure: %v", failure)

	// A rejected reload leaves the working policy in place.
	require.Error(t, v.LoadBytes([]byte("garbage:\n  id: x\n"), ""))
	valid, _ = validateData(t, v, "/other/data", otherKey)
	require.True(t, valid)
}

func TestLoadFile(t *testing.T) {
	tb := newTestbed(t)
	v, err := validator.New(validator.Options{Fetch: tb.fetch, StepLimit: 3})
	require.NoError(t, err)
	require.Error(t, v.LoadFile("/no/such/policy.conf"))
}

// countingCache wraps the default cache to observe inserts.
type countingCache struct {
	inner   validator.CertCache
	inserts int
}

func (c *countingCache) Lookup(name enc.Name) ndn.Data { return c.inner.Lookup(name) }
func (c *countingCache) Insert(cert ndn.Data, ttl time.Duration) {
	c.inserts++
	c.inner.Insert(cert, ttl)
}

func TestCacheOnlyValidatedCerts(t *testing.T) {
	tu.SetT(t)
	tb := newTestbed(t)

	rootKey, _, rootCert := tb.keygen("/test", nil)
	aliceKey, _, _ := tb.keygen("/test/alice", rootKey)

	cache := &countingCache{inner: validator.NewTtlCertCache(time.Minute)}
	v, err := validator.New(validator.Options{
		Fetch:     tb.fetch,
		StepLimit: 3,
		Cache:     cache,
	})
	require.NoError(t, err)
	require.NoError(t, v.LoadBytes(chainPolicy(rootCert), ""))

	valid, failure := validateData(t, v, "/test/alice/data", aliceKey)
	require.True(t, valid, "failure: %v", failure)
	require.Equal(t, 1, cache.inserts)

	// Failed chains insert nothing.
	ghostKey, err := signer.KeygenEd25519(sec.MakeKeyName(sname("/test/ghost")))
	require.NoError(t, err)
	valid, _ = validateData(t, v, "/test/ghost/data", ghostKey)
	require.False(t, valid)
	require.Equal(t, 1, cache.inserts)
}

func TestValidationFailuresAreErrors(t *testing.T) {
	// All terminal reasons are distinguishable with errors.Is.
	wrapped := fmt.Errorf("%w: %w", validator.ErrUntrustedCert, validator.ErrMaxSteps)
	require.True(t, errors.Is(wrapped, validator.ErrUntrustedCert))
	require.True(t, errors.Is(wrapped, validator.ErrMaxSteps))
	require.False(t, errors.Is(wrapped, validator.ErrInvalidSignature))
}
